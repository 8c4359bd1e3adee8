package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config carries the process configuration, read once at startup.
type Config struct {
	ListenAddr    string
	JWTSecret     string
	OwnerAddress  string
	FeeReceiver   string
	EscrowAccount string

	MinTradeAmount    uint64
	SellerDepositRate uint64
	BuyerDepositRate  uint64
}

// Load reads an optional .env file and the environment. Missing values fall
// back to development defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debugln("no .env file loaded, using environment")
	}

	return Config{
		ListenAddr:        getString("LISTEN_ADDR", ":8080"),
		JWTSecret:         getString("JWT_SECRET", "dev-secret-change-me"),
		OwnerAddress:      getString("OWNER_ADDRESS", "0x0000000000000000000000000000000000000001"),
		FeeReceiver:       getString("FEE_RECEIVER", "0x0000000000000000000000000000000000000002"),
		EscrowAccount:     getString("ESCROW_ACCOUNT", "0x0000000000000000000000000000000000000e5c"),
		MinTradeAmount:    getUint64("MIN_TRADE_AMOUNT", 50),
		SellerDepositRate: getUint64("SELLER_DEPOSIT_RATE", 21),
		BuyerDepositRate:  getUint64("BUYER_DEPOSIT_RATE", 5),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getUint64(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.WithField("key", key).Warnln("invalid numeric value, using default")
		return fallback
	}
	return n
}
