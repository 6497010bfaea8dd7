package configuration

func Default() Configuration {
	return Configuration{
		HttpAddr:      "127.0.0.1:8080",
		Dir:           "data",
		Journal:       "json",
		CacheSize:     8,
		DurableCommit: true,
		LogLevel:      "info",
		LogFormat:     "text",
		ShowBanner:    true,
	}
}
