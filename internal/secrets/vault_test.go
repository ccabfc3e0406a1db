package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/secrets"
)

func TestNewVault_LoaderError(t *testing.T) {
	_, err := secrets.NewVault(func() (map[string]string, error) {
		return nil, errors.New("permission denied")
	})
	if err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ReloadKeepsValuesOnError(t *testing.T) {
	calls := 0
	v, err := secrets.NewVault(func() (map[string]string, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("boom")
		}
		return map[string]string{secrets.OpenAIAPIKey: "sk-1"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := v.Get(secrets.OpenAIAPIKey); got != "sk-1" {
		t.Fatalf("expected old value kept, got %q", got)
	}
}

func TestVault_ConcurrentReadsDuringReload(t *testing.T) {
	v := secrets.Static(map[string]string{secrets.GitHubToken: "ghp"})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = v.Has(secrets.GitHubToken) }()
		go func() { defer wg.Done(); _ = v.Reload() }()
	}
	wg.Wait()
	if !v.Has(secrets.GitHubToken) {
		t.Fatal("token lost")
	}
}

func TestNilVault(t *testing.T) {
	var v *secrets.Vault
	if v.Has(secrets.OpenAIAPIKey) {
		t.Fatal("nil vault must report no secrets")
	}
}

func TestDotEnvLoaderAndChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# keys\nexport OPENAI_API_KEY=\"sk-file\"\nUNRELATED=1\nGITHUB_TOKEN='ghp-file'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(secrets.GitHubToken, "ghp-env")

	loader := secrets.Chain(
		secrets.DotEnvLoader(path, secrets.Names...),
		secrets.EnvLoader(secrets.Names...),
	)
	vals, err := loader()
	if err != nil {
		t.Fatal(err)
	}
	if vals[secrets.OpenAIAPIKey] != "sk-file" {
		t.Errorf("expected sk-file, got %q", vals[secrets.OpenAIAPIKey])
	}
	if vals[secrets.GitHubToken] != "ghp-env" {
		t.Errorf("env should override file, got %q", vals[secrets.GitHubToken])
	}
	if _, ok := vals["UNRELATED"]; ok {
		t.Error("unrelated keys must be dropped")
	}
}

func TestDotEnvLoaderMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NOEQUALS\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := secrets.DotEnvLoader(path, secrets.Names...)(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDotEnvLoaderMissingFile(t *testing.T) {
	vals, err := secrets.DotEnvLoader(filepath.Join(t.TempDir(), "nope"), secrets.Names...)()
	if err != nil || len(vals) != 0 {
		t.Fatalf("missing file should yield empty map, got %v %v", vals, err)
	}
}
