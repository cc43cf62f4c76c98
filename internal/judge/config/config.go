package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/0xguardapp/0xguard-engine/internal/judge/verifier"
	"github.com/0xguardapp/0xguard-engine/pkg/env"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

var (
	DevMode bool

	// Port for the judge control API.
	APIPort string

	// Secret planted on the simulated target. A claim is valid only when
	// the extracted secret matches this value exactly.
	TargetSecret string

	// Identity the judge submits proofs under.
	AuditorAddress string

	PaymasterURL     string
	PaymasterTimeout time.Duration

	MidnightAPIURL          string
	MidnightContractAddress string
	// SimulationMode substitutes deterministic simulated proofs for real
	// submissions. Must be enabled explicitly.
	SimulationMode bool

	RiskThreshold int

	MaxBountiesPerHour int
	CooldownSeconds    int
	DailyBountyCap     int64

	// Optional Redis stream sink for audit events. Empty disables it.
	RedisURL      string
	RedisPassword string

	// Optional on-chain reputation registry. Empty RPC URL disables it.
	RegistryRPCURL          string
	RegistryContractAddress string
	RegistryPrivateKey      string
	RegistryChainID         int64

	// Optional YAML file overriding the shipped verification rules.
	RulesFile string
)

func Init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	DevMode = env.GetEnvBool("DEV_MODE", false)
	APIPort = env.GetEnvString("JUDGE_API_PORT", "9007")

	TargetSecret = env.GetEnvString("TARGET_SECRET", "")
	if TargetSecret == "" {
		log.Fatal("Invalid TargetSecret")
	}

	AuditorAddress = env.GetEnvString("AUDITOR_ADDRESS", "judge-engine")

	PaymasterURL = env.GetEnvString("PAYMASTER_URL", "")
	if PaymasterURL == "" {
		log.Fatal("Invalid PaymasterURL")
	}
	PaymasterTimeout = env.GetEnvDuration("PAYMASTER_TIMEOUT", 10*time.Second)

	MidnightAPIURL = env.GetEnvString("MIDNIGHT_API_URL", "")
	SimulationMode = env.GetEnvBool("MIDNIGHT_SIMULATION_MODE", false)
	if MidnightAPIURL == "" && !SimulationMode {
		log.Fatal("Invalid MidnightAPIURL: set MIDNIGHT_API_URL or enable MIDNIGHT_SIMULATION_MODE")
	}
	MidnightContractAddress = env.GetEnvString("MIDNIGHT_CONTRACT_ADDRESS", "")

	RiskThreshold = env.GetEnvInt("PROOF_RISK_THRESHOLD", 90)

	MaxBountiesPerHour = env.GetEnvInt("MAX_BOUNTIES_PER_HOUR", 10)
	CooldownSeconds = env.GetEnvInt("BOUNTY_COOLDOWN_SECONDS", 120)
	DailyBountyCap = env.GetEnvInt64("DAILY_BOUNTY_CAP", 10000)

	RedisURL = env.GetEnvString("REDIS_URL", "")
	RedisPassword = env.GetEnvString("REDIS_PASSWORD", "")

	RegistryRPCURL = env.GetEnvString("REGISTRY_RPC_URL", "")
	RegistryContractAddress = env.GetEnvString("REGISTRY_CONTRACT_ADDRESS", "")
	RegistryPrivateKey = env.GetEnvString("REGISTRY_PRIVATE_KEY", "")
	RegistryChainID = env.GetEnvInt64("REGISTRY_CHAIN_ID", 0)

	RulesFile = env.GetEnvString("RULES_FILE", "")

	if !DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
}

// RulesDocument is the on-disk shape of a verification rules override file.
type RulesDocument struct {
	Rules       verifier.Rules   `yaml:"rules"`
	BountyRates map[string]int64 `yaml:"bounty_rates"`
}

// LoadRules reads the rules override file. A missing path returns the
// shipped defaults; a present but malformed file is an error.
func LoadRules(path string) (verifier.Rules, map[types.Severity]int64, error) {
	rules := verifier.DefaultRules()
	rates := verifier.DefaultRates()

	if path == "" {
		return rules, rates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, rates, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	doc := RulesDocument{Rules: rules}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rules, rates, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	if doc.Rules.MinSeverity != "" && !doc.Rules.MinSeverity.Valid() {
		return rules, rates, fmt.Errorf("invalid min_severity %q in rules file %s", doc.Rules.MinSeverity, path)
	}

	for name, amount := range doc.BountyRates {
		severity, err := types.ParseSeverity(name)
		if err != nil {
			return rules, rates, fmt.Errorf("invalid severity %q in rules file %s", name, path)
		}
		if amount < 0 {
			return rules, rates, fmt.Errorf("negative bounty rate for %q in rules file %s", name, path)
		}
		rates[severity] = amount
	}

	return doc.Rules, rates, nil
}
