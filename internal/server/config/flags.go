package config

import (
	"flag"
	"os"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN
//	-l string   log level
//	-m string   media root
//	-v string   vision directory (references and region files)
//	-x string   evidence driver: fs, s3 or memory
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-H string   MQTT broker host
//	-P int      MQTT broker port
//	-B string   MQTT topic base
//	-r string   forced reader id
//	-k string   analyzer mode: inprocess or exec
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-l", "-m", "-v", "-x", "-u", "-p", "-b", "-g", "-e", "-H", "-P", "-B", "-r", "-k",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.MediaRoot, "m", config.MediaRoot, "media root")
	fs.StringVar(&config.VisionDir, "v", config.VisionDir, "vision directory")
	fs.StringVar(&config.EvidenceDriver, "x", config.EvidenceDriver, "evidence driver (fs, s3, memory)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.MQTTHost, "H", config.MQTTHost, "MQTT host")
	fs.IntVar(&config.MQTTPort, "P", config.MQTTPort, "MQTT port")
	fs.StringVar(&config.MQTTBase, "B", config.MQTTBase, "MQTT topic base")
	fs.StringVar(&config.ReaderID, "r", config.ReaderID, "forced reader id")
	fs.StringVar(&config.AnalyzerMode, "k", config.AnalyzerMode, "analyzer mode (inprocess, exec)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
