package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/cursordb/bootstrap"
	"github.com/fulldump/cursordb/configuration"
	"github.com/fulldump/cursordb/logging"
)

var banner = `
                                     _ _     
  ___ _   _ _ __ ___  ___  _ __ __| | |__  
 / __| | | | '__/ __|/ _ \| '__/ _' | '_ \ 
| (__| |_| | |  \__ \ (_) | | | (_| | |_) |
 \___|\__,_|_|  |___/\___/|_|  \__,_|_.__/ 
                          version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	logger := logging.Init(c.LogLevel, c.LogFormat)

	start, _, err := bootstrap.Bootstrap(&c, logger)
	if err != nil {
		logger.Error("bootstrap", "err", err)
		os.Exit(-1)
	}

	start()
}
