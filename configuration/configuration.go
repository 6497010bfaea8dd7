package configuration

type Configuration struct {
	HttpAddr      string `usage:"HTTP address"`
	Dir           string `usage:"data directory, empty keeps everything in memory"`
	Journal       string `usage:"journal codec: json or xz"`
	CacheSize     int    `usage:"pooled cursors per collection"`
	DurableCommit bool   `usage:"sync the journal on every commit"`
	ApiKey        string `usage:"api key required in X-Api-Key header"`
	ApiSecret     string `usage:"api secret required in X-Api-Secret header"`
	LogLevel      string `usage:"log level: debug, info, warn or error"`
	LogFormat     string `usage:"log format: text or json"`
	Version       bool   `usage:"show version and exit"`
	ShowBanner    bool   `usage:"show big banner"`
	ShowConfig    bool   `usage:"print config"`
}
