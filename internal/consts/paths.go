package consts

import (
	"os"
	"path/filepath"
)

const (
	GatewayDirName  = ".suppgw"
	ConfigFileName  = "config.yaml"
	EscalationDBDir = "escalation"
	EscalationDB    = "escalations.db"
	CoordinationDB  = "coordination.db"
)

func GatewayHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, GatewayDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(GatewayHomeDir(), ConfigFileName)
}

func DefaultEscalationDBPath() string {
	return filepath.Join(GatewayHomeDir(), EscalationDBDir, EscalationDB)
}

func DefaultCoordinationDBPath() string {
	return filepath.Join(GatewayHomeDir(), EscalationDBDir, CoordinationDB)
}
