package config

import (
	"github.com/spf13/pflag"
)

// flagValues holds what was parsed from the command line. Only flags the
// user actually passed override the lower layers.
type flagValues struct {
	fs *pflag.FlagSet

	configFile    string
	port          int
	storeDriver   string
	dbPath        string
	databaseDSN   string
	jwtSecretFile string
	logLevel      string
}

// parseFlags parses args.
//
// Supported flags:
//
//	-c, --config string            YAML config file
//	-p, --port int                 listen port
//	    --store string             store driver (sqlite|postgres)
//	    --db-path string           SQLite database file
//	    --database-dsn string      PostgreSQL DSN
//	    --jwt-secret-file string   file holding the signing secret
//	    --log-level string         debug|info|warn|error
//
// The secret itself has no flag: command lines show up in process lists.
func parseFlags(args []string) (*flagValues, error) {
	fl := &flagValues{}
	fs := pflag.NewFlagSet("gat-accounts", pflag.ContinueOnError)

	fs.StringVarP(&fl.configFile, "config", "c", "", "YAML config file")
	fs.IntVarP(&fl.port, "port", "p", 0, "listen port")
	fs.StringVar(&fl.storeDriver, "store", "", "store driver (sqlite|postgres)")
	fs.StringVar(&fl.dbPath, "db-path", "", "SQLite database file")
	fs.StringVar(&fl.databaseDSN, "database-dsn", "", "PostgreSQL DSN")
	fs.StringVar(&fl.jwtSecretFile, "jwt-secret-file", "", "file holding the token signing secret")
	fs.StringVar(&fl.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fl.fs = fs
	return fl, nil
}

// apply overrides c with every flag that was set explicitly.
func (fl *flagValues) apply(c *Config) {
	if fl.fs.Changed("port") {
		c.Port = fl.port
	}
	if fl.fs.Changed("store") {
		c.StoreDriver = fl.storeDriver
	}
	if fl.fs.Changed("db-path") {
		c.DBPath = fl.dbPath
	}
	if fl.fs.Changed("database-dsn") {
		c.DatabaseDSN = fl.databaseDSN
	}
	if fl.fs.Changed("jwt-secret-file") {
		c.JWTSecretFile = fl.jwtSecretFile
	}
	if fl.fs.Changed("log-level") {
		c.LogLevel = fl.logLevel
	}
}
