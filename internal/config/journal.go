package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	JournalMemory   = "memory"
	JournalBolt     = "bolt"
	JournalPostgres = "postgres"
)

type JournalConfig struct {
	// Driver selects the transaction journal: memory, bolt or postgres.
	// Default: "bolt"
	Driver string

	// DBPath is the path to the BoltDB file.
	// Default: "./data/swap-engine.db"
	DBPath string

	// PostgresDSN is required by the postgres driver.
	PostgresDSN string
}

func (c *JournalConfig) Key() string {
	return JOURNAL_CONFIG_KEY
}

func (c *JournalConfig) Load(v *viper.Viper) error {
	v.SetDefault("journal.driver", JournalBolt)
	v.SetDefault("journal.db_path", "./data/swap-engine.db")

	c.Driver = v.GetString("journal.driver")
	c.DBPath = v.GetString("journal.db_path")
	c.PostgresDSN = v.GetString("journal.postgres_dsn")
	return nil
}

func (c *JournalConfig) Validate() error {
	switch c.Driver {
	case JournalMemory, JournalBolt:
		return nil
	case JournalPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("journal.postgres_dsn is required by the postgres driver")
		}
		return nil
	}
	return fmt.Errorf("unknown journal driver %q", c.Driver)
}
