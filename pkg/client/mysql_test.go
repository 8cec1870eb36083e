package client

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name     string
		opts     MySQLOptions
		wantUser string
		wantPass string
	}{
		{
			name:     "with password",
			opts:     MySQLOptions{User: "courtq", Password: "secret", Host: "db", Port: "3306", Name: "courtq"},
			wantUser: "courtq",
			wantPass: "secret",
		},
		{
			name:     "without password",
			opts:     MySQLOptions{User: "root", Host: "localhost", Port: "3307", Name: "test"},
			wantUser: "root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := MySQLDSN(tt.opts)
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				t.Fatalf("ParseDSN(%q) error = %v", dsn, err)
			}
			if cfg.MultiStatements {
				t.Errorf("DSN %q enables multiStatements", dsn)
			}
			if !cfg.ParseTime || cfg.Loc != time.UTC || !cfg.ClientFoundRows {
				t.Errorf("DSN %q: parseTime=%v loc=%v clientFoundRows=%v", dsn, cfg.ParseTime, cfg.Loc, cfg.ClientFoundRows)
			}
			if cfg.User != tt.wantUser || cfg.Passwd != tt.wantPass {
				t.Errorf("credentials = %s/%s, want %s/%s", cfg.User, cfg.Passwd, tt.wantUser, tt.wantPass)
			}
			if want := tt.opts.Host + ":" + tt.opts.Port; cfg.Addr != want || cfg.DBName != tt.opts.Name {
				t.Errorf("addr = %s db = %s, want %s/%s", cfg.Addr, cfg.DBName, want, tt.opts.Name)
			}
		})
	}
}
