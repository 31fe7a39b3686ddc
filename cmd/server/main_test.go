package main

import (
	"context"
	"errors"
	"testing"

	"github.com/keithlinneman/dbprobe/internal/cfg"
)

func setDBEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "probe")
	t.Setenv("DB_PASS", "from-env")
	t.Setenv("DB_NAME", "app")
	t.Setenv("DB_PORT", "5432")
}

func TestLoadDB_FromEnv(t *testing.T) {
	setDBEnv(t)
	d, err := loadDB(context.Background(), cfg.App{})
	if err != nil {
		t.Fatalf("loadDB: %v", err)
	}
	if d.Password != "from-env" || d.Host != "db.internal" || d.Port != 5432 {
		t.Fatalf("unexpected config: %s", d)
	}
	if d.PoolSize != cfg.DefaultPoolSize || d.MaxOverflow != cfg.DefaultMaxOverflow {
		t.Fatalf("defaults not applied: %+v", d.LogFields())
	}
}

func TestLoadDB_MissingIsConfigError(t *testing.T) {
	setDBEnv(t)
	t.Setenv("DB_HOST", "")

	_, err := loadDB(context.Background(), cfg.App{})
	var missing *cfg.MissingEnvError
	if !errors.As(err, &missing) || missing.Name != cfg.EnvDBHost {
		t.Fatalf("err = %v, want MissingEnvError for DB_HOST", err)
	}
}

func TestLoadDB_BothSecretSourcesRejected(t *testing.T) {
	setDBEnv(t)
	_, err := loadDB(context.Background(), cfg.App{DBPassSSMParam: "/p", DBPassKMSBlob: "Zm9v"})
	if err == nil {
		t.Fatal("expected error when SSM and KMS are both configured")
	}
}

func TestPasswordSource(t *testing.T) {
	tests := map[string]cfg.App{
		"env": {},
		"ssm": {DBPassSSMParam: "/dbprobe/db-pass"},
		"kms": {DBPassKMSBlob: "Zm9v"},
	}
	for want, c := range tests {
		if got := passwordSource(c); got != want {
			t.Errorf("passwordSource(%+v) = %q, want %q", c, got, want)
		}
	}
}
