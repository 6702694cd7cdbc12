package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"duniter-core/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.Node.Currency != "g1" {
		t.Fatalf("unexpected currency: %s", AppConfig.Node.Currency)
	}
	if AppConfig.WS2P.Port != 20901 {
		t.Fatalf("unexpected ws2p port: %d", AppConfig.WS2P.Port)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("bootstrap")
	if AppConfig.WS2P.OutgoingQuota != 20 {
		t.Fatalf("expected outgoing quota 20, got %d", AppConfig.WS2P.OutgoingQuota)
	}
	if AppConfig.Logging.Level != "debug" {
		t.Fatalf("expected logging level override to debug")
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("node:\n  currency: sandbox-coin\n  data_dir: /tmp/sandbox\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Node.Currency != "sandbox-coin" {
		t.Fatalf("expected currency sandbox-coin, got %s", AppConfig.Node.Currency)
	}
	if AppConfig.Node.DataDir != "/tmp/sandbox" {
		t.Fatalf("expected data dir override, got %s", AppConfig.Node.DataDir)
	}
}
