package cfg

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		EnvDBHost: "10.0.0.5",
		EnvDBUser: "probe",
		EnvDBPass: "s3cr3t",
		EnvDBName: "appdb",
		EnvDBPort: "5432",
	}
}

func TestLoadDB_Defaults(t *testing.T) {
	d, err := LoadDB(mapLookup(requiredEnv()))
	if err != nil {
		t.Fatalf("LoadDB: %v", err)
	}
	if d.Host != "10.0.0.5" || d.User != "probe" || d.Password != "s3cr3t" || d.Database != "appdb" || d.Port != 5432 {
		t.Fatalf("required fields = %+v", d)
	}
	if d.PoolSize != 5 || d.MaxOverflow != 2 {
		t.Errorf("sizing = %d/%d, want 5/2", d.PoolSize, d.MaxOverflow)
	}
	if d.PoolTimeout != 30*time.Second {
		t.Errorf("PoolTimeout = %s, want 30s", d.PoolTimeout)
	}
	if d.PoolRecycle != 1800*time.Second {
		t.Errorf("PoolRecycle = %s, want 30m", d.PoolRecycle)
	}
	if d.MaxConns() != 7 {
		t.Errorf("MaxConns = %d, want 7", d.MaxConns())
	}
}

func TestLoadDB_EmptyKnobsUseDefaults(t *testing.T) {
	env := requiredEnv()
	env[EnvPoolSize] = ""
	env[EnvMaxOverflow] = ""
	env[EnvPoolTimeout] = ""
	env[EnvPoolRecycle] = ""

	d, err := LoadDB(mapLookup(env))
	if err != nil {
		t.Fatalf("LoadDB: %v", err)
	}
	if d.PoolSize != DefaultPoolSize || d.MaxOverflow != DefaultMaxOverflow ||
		d.PoolTimeout != DefaultPoolTimeout || d.PoolRecycle != DefaultPoolRecycle {
		t.Fatalf("empty knobs should default, got %+v", d)
	}
}

func TestLoadDB_ExplicitKnobs(t *testing.T) {
	env := requiredEnv()
	env[EnvPoolSize] = "10"
	env[EnvMaxOverflow] = "0"
	env[EnvPoolTimeout] = "3"
	env[EnvPoolRecycle] = "-1"

	d, err := LoadDB(mapLookup(env))
	if err != nil {
		t.Fatalf("LoadDB: %v", err)
	}
	if d.PoolSize != 10 || d.MaxOverflow != 0 {
		t.Errorf("sizing = %d/%d, want 10/0", d.PoolSize, d.MaxOverflow)
	}
	if d.PoolTimeout != 3*time.Second {
		t.Errorf("PoolTimeout = %s", d.PoolTimeout)
	}
	if d.PoolRecycle != -time.Second {
		t.Errorf("PoolRecycle = %s, want -1s (disabled)", d.PoolRecycle)
	}
}

func TestLoadDB_MissingRequired(t *testing.T) {
	for _, name := range []string{EnvDBHost, EnvDBUser, EnvDBPass, EnvDBName, EnvDBPort} {
		t.Run(name, func(t *testing.T) {
			env := requiredEnv()
			delete(env, name)

			_, err := LoadDB(mapLookup(env))
			var missing *MissingEnvError
			if !errors.As(err, &missing) {
				t.Fatalf("want MissingEnvError, got %v", err)
			}
			if missing.Name != name {
				t.Fatalf("missing.Name = %q, want %q", missing.Name, name)
			}
		})
	}
}

func TestLoadDB_EmptyRequiredIsMissing(t *testing.T) {
	env := requiredEnv()
	env[EnvDBHost] = "  "
	_, err := LoadDB(mapLookup(env))
	var missing *MissingEnvError
	if !errors.As(err, &missing) || missing.Name != EnvDBHost {
		t.Fatalf("want MissingEnvError for DB_HOST, got %v", err)
	}
}

func TestLoadDB_PasswordKeptVerbatim(t *testing.T) {
	for _, pass := range []string{"   ", " pa ss\t"} {
		env := requiredEnv()
		env[EnvDBPass] = pass
		d, err := LoadDB(mapLookup(env))
		if err != nil {
			t.Fatalf("DB_PASS=%q: %v", pass, err)
		}
		if d.Password != pass {
			t.Fatalf("Password = %q, want %q", d.Password, pass)
		}
	}

	env := requiredEnv()
	env[EnvDBPass] = ""
	_, err := LoadDB(mapLookup(env))
	var missing *MissingEnvError
	if !errors.As(err, &missing) || missing.Name != EnvDBPass {
		t.Fatalf("empty DB_PASS: want MissingEnvError, got %v", err)
	}
}

func TestLoadDB_LargestValues(t *testing.T) {
	env := requiredEnv()
	env[EnvPoolSize] = "2147483640"
	env[EnvMaxOverflow] = "7"
	env[EnvPoolTimeout] = "9223372036"

	d, err := LoadDB(mapLookup(env))
	if err != nil {
		t.Fatalf("LoadDB: %v", err)
	}
	if d.MaxConns() != math.MaxInt32 {
		t.Errorf("MaxConns = %d, want %d", d.MaxConns(), math.MaxInt32)
	}
	if d.PoolTimeout <= 0 {
		t.Errorf("PoolTimeout = %s, want positive", d.PoolTimeout)
	}
}

func TestLoadDB_AllMissingReported(t *testing.T) {
	_, err := LoadDB(mapLookup(nil))
	if err == nil {
		t.Fatal("want error")
	}
	for _, name := range []string{EnvDBHost, EnvDBUser, EnvDBPass, EnvDBName, EnvDBPort} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestLoadDB_Invalid(t *testing.T) {
	tests := []struct {
		name, key, val string
	}{
		{"port not int", EnvDBPort, "pg"},
		{"port range", EnvDBPort, "70000"},
		{"pool size zero", EnvPoolSize, "0"},
		{"pool size not int", EnvPoolSize, "five"},
		{"overflow negative", EnvMaxOverflow, "-1"},
		{"timeout zero", EnvPoolTimeout, "0"},
		{"recycle below -1", EnvPoolRecycle, "-5"},
		{"pool size above int32", EnvPoolSize, "4294967301"},
		{"overflow above int32", EnvMaxOverflow, "2147483648"},
		{"pool size plus overflow above int32", EnvMaxOverflow, "2147483647"},
		{"timeout overflows duration", EnvPoolTimeout, "9223372037"},
		{"timeout beyond int64", EnvPoolTimeout, "99999999999999999999"},
		{"recycle overflows duration", EnvPoolRecycle, "9223372037"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := requiredEnv()
			env[tt.key] = tt.val
			_, err := LoadDB(mapLookup(env))
			var invalid *InvalidEnvError
			if !errors.As(err, &invalid) {
				t.Fatalf("want InvalidEnvError, got %v", err)
			}
			if invalid.Name != tt.key {
				t.Fatalf("invalid.Name = %q, want %q", invalid.Name, tt.key)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	env := requiredEnv()
	delete(env, EnvDBPass)
	lookup := Override(mapLookup(env), EnvDBPass, "from-ssm")

	d, err := LoadDB(lookup)
	if err != nil {
		t.Fatalf("LoadDB: %v", err)
	}
	if d.Password != "from-ssm" {
		t.Fatalf("Password = %q", d.Password)
	}
}

func TestDB_StringOmitsPassword(t *testing.T) {
	d, err := LoadDB(mapLookup(requiredEnv()))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(d.String(), "s3cr3t") {
		t.Fatalf("String() leaks password: %s", d)
	}
	for i := 0; i < len(d.LogFields()); i += 2 {
		if d.LogFields()[i+1] == "s3cr3t" {
			t.Fatal("LogFields leaks password")
		}
	}
}
