package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/cultivation/internal/game/cultivation"
	"github.com/udisondev/cultivation/internal/model"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CULTIVATION_CONFIG", "")
	assert.Equal(t, DefaultConfigPath, configPath(""))

	t.Setenv("CULTIVATION_CONFIG", "/etc/cultivation.yaml")
	assert.Equal(t, "/etc/cultivation.yaml", configPath(""))
	assert.Equal(t, "local.yaml", configPath("local.yaml"))
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "42"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 42}, ids)

	for _, bad := range []string{"0", "-3", "abc", ""} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

// Проверки аргументов срабатывают до подключения к базе.
func TestRootCmd_ArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"grant-exp needs amount", []string{"grant-exp", "1"}, "accepts 2 arg(s)"},
		{"rollback needs operator", []string{"rollback", uuid.NewString()}, `"operator" not set`},
		{"status needs ids", []string{"status"}, "requires at least 1 arg(s)"},
		{"unknown command", []string{"ascend"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrintStatus(t *testing.T) {
	rate := 0.7
	st := cultivation.ProgressionStatus{
		CharacterID:        7,
		Name:               "Han Li",
		Experience:         6000,
		Realm:              model.Pos(2, 4),
		RealmName:          "Qi Condensation 4",
		RequiredExperience: 6000,
		ProgressPercent:    100,
		Stats:              model.StatBonuses{HP: 100, MP: 50, Attack: 10, Defense: 5},
		Gates: []cultivation.GateStatus{
			{GateID: model.GateFoundation, Required: model.Pos(1, 4), Reason: "already passed"},
			{GateID: model.GateCoreFormation, Required: model.Pos(2, 4), CanAttempt: true, HasRequiredItems: true, SuccessRate: &rate, DeathOnFailure: true},
		},
	}

	var buf bytes.Buffer
	printStatus(&buf, st)
	out := buf.String()

	assert.Contains(t, out, "Han Li (#7)")
	assert.Contains(t, out, "(100%)")
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[3], "item-gated")
	assert.Contains(t, lines[3], "already passed")
	assert.Contains(t, lines[4], "70%")
	assert.Contains(t, lines[4], "ready")
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, nil)
	assert.Equal(t, "no records\n", buf.String())

	roll := 0.9
	by := "gm-alice"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []*model.TribulationRecord{
		{ID: uuid.New(), CharacterID: 1, GateID: model.GateCoreFormation, Roll: &roll, AttemptedAt: at,
			Snapshot: &model.Snapshot{Character: model.SnapshotCharacter{Name: "Han Li"}}},
		{ID: uuid.New(), CharacterID: 2, GateID: model.GateFoundation, Success: true, AttemptedAt: at},
		{ID: uuid.New(), CharacterID: 3, GateID: model.GateCoreFormation, RolledBack: true, RolledBackBy: &by, AttemptedAt: at},
	}

	buf.Reset()
	printRecords(&buf, recs)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Han Li")
	assert.Contains(t, lines[1], "0.900")
	assert.Contains(t, lines[1], "died")
	assert.Contains(t, lines[1], "2026-03-01T12:00:00Z")
	assert.Contains(t, lines[2], "passed")
	assert.Contains(t, lines[3], "rolled back by gm-alice")
}

func TestPrintBreakthrough(t *testing.T) {
	var buf bytes.Buffer
	printBreakthrough(&buf, cultivation.BreakthroughResult{
		From: model.Pos(1, 1), FinalRealm: model.Pos(1, 4), Advanced: 3, BlockedByGate: model.GateFoundation,
	})
	assert.Contains(t, buf.String(), "blocked by gate "+model.GateFoundation)

	buf.Reset()
	printBreakthrough(&buf, cultivation.BreakthroughResult{FinalRealm: model.Pos(2, 4), Died: true})
	assert.True(t, strings.HasPrefix(buf.String(), "died at "))
}
