package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
	"github.com/musudik/dropmybeat-api/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedBundledFixture(t *testing.T) {
	data, err := os.ReadFile("fixture.yaml")
	require.NoError(t, err)
	fixture, err := parseFixture(data)
	require.NoError(t, err)

	ctx := context.Background()
	st := memory.NewStore(memory.WithPasswordCost(bcrypt.MinCost))
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	res, err := Seed(ctx, st, fixture, now)
	require.NoError(t, err)
	assert.Equal(t, Result{People: 4, Events: 2, Members: 3}, res)

	dj, err := st.People().GetByEmail(ctx, "dj.nova@dropmybeat.local")
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, dj.Role)

	sam, err := st.People().GetByEmail(ctx, "sam@dropmybeat.local")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, sam.Role)

	events, err := st.Events().List(ctx, store.EventFilter{ManagerID: dj.ID})
	require.NoError(t, err)
	require.Len(t, events, 2)

	byName := map[string]*models.Event{}
	for _, e := range events {
		byName[e.Name] = e
	}
	warehouse := byName["Friday Night Warehouse"]
	require.NotNil(t, warehouse)
	assert.Equal(t, models.EventStatusActive, warehouse.Status)
	assert.True(t, warehouse.TimeBombEnabled)
	assert.Equal(t, 15, warehouse.TimeBombDuration)
	assert.Equal(t, now.Add(-time.Hour), warehouse.StartDate)
	assert.Len(t, warehouse.Members, 2)

	rooftop := byName["Rooftop Sundowner"]
	require.NotNil(t, rooftop)
	assert.Equal(t, models.EventStatusPublished, rooftop.Status)
	assert.False(t, rooftop.IsPublic)
	assert.Equal(t, 3*time.Hour, rooftop.EndDate.Sub(rooftop.StartDate))
}

func TestSeedIsRepeatable(t *testing.T) {
	data, err := os.ReadFile("fixture.yaml")
	require.NoError(t, err)
	fixture, err := parseFixture(data)
	require.NoError(t, err)

	ctx := context.Background()
	st := memory.NewStore(memory.WithPasswordCost(bcrypt.MinCost))
	now := time.Now().UTC()

	_, err = Seed(ctx, st, fixture, now)
	require.NoError(t, err)
	res, err := Seed(ctx, st, fixture, now)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestSeedRejectsBadFixtures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "people:\n  - email: a@b.c\n    nickname: x\n",
			wantErr: "nickname",
		},
		{
			name:    "unknown manager",
			yaml:    "events:\n  - name: Party\n    manager: nobody@b.c\n",
			wantErr: "not in the fixture",
		},
		{
			name:    "short password",
			yaml:    "people:\n  - email: a@b.c\n    password: short\n",
			wantErr: "at least 8",
		},
		{
			name: "time bomb out of range",
			yaml: "people:\n  - email: dj@b.c\n    password: long-enough\n    role: manager\n" +
				"events:\n  - name: Party\n    manager: dj@b.c\n    time_bomb_minutes: 500\n",
			wantErr: "time bomb duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture, err := parseFixture([]byte(tt.yaml))
			if err == nil {
				st := memory.NewStore(memory.WithPasswordCost(bcrypt.MinCost))
				_, err = Seed(context.Background(), st, fixture, time.Now().UTC())
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
