// Package seed loads reference data (facilities, providers and facility
// options) from a YAML, JSON or TOML fixture file. It backs the memory
// storage driver and local development.
package seed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/scheduling"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/stay"
)

type Fixture struct {
	Facilities []Facility `mapstructure:"facilities"`
}

type Facility struct {
	ID        string     `mapstructure:"id"`
	Name      string     `mapstructure:"name"`
	Active    *bool      `mapstructure:"active"`
	Providers []Provider `mapstructure:"providers"`
	Options   []Option   `mapstructure:"options"`
}

type Provider struct {
	ID                 string `mapstructure:"id"`
	Name               string `mapstructure:"name"`
	Fee                int64  `mapstructure:"fee"`
	StartHour          int    `mapstructure:"start_hour"`
	EndHour            int    `mapstructure:"end_hour"`
	GranularityMinutes int    `mapstructure:"granularity_minutes"`
	Active             *bool  `mapstructure:"active"`
}

type Option struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	NightlyRate int64  `mapstructure:"nightly_rate"`
	MaxGuests   int    `mapstructure:"max_guests"`
	Active      *bool  `mapstructure:"active"`
}

// Summary counts what Apply created.
type Summary struct {
	Facilities int
	Providers  int
	Options    int
}

// Load reads the fixture at path. The format follows the file extension.
func Load(path string) (*Fixture, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	var fx Fixture
	if err := v.Unmarshal(&fx); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return &fx, nil
}

func parseOptionalID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s id %q: %w", kind, raw, err)
	}
	return id, nil
}

func active(b *bool) bool { return b == nil || *b }

// Apply creates every fixture entry through the services so the usual
// validation applies. It stops at the first failure.
func (fx *Fixture) Apply(ctx context.Context, sched *scheduling.Service, stays *stay.Service) (Summary, error) {
	var sum Summary
	for _, ff := range fx.Facilities {
		id, err := parseOptionalID("facility", ff.ID)
		if err != nil {
			return sum, err
		}
		f := &scheduling.Facility{ID: id, Name: ff.Name, Active: active(ff.Active)}
		if err := sched.CreateFacility(ctx, f); err != nil {
			return sum, fmt.Errorf("facility %q: %w", ff.Name, err)
		}
		sum.Facilities++

		for _, fp := range ff.Providers {
			pid, err := parseOptionalID("provider", fp.ID)
			if err != nil {
				return sum, err
			}
			p := &scheduling.Provider{
				ID:                 pid,
				FacilityID:         f.ID,
				Name:               fp.Name,
				Fee:                money.Money(fp.Fee),
				Window:             calendar.Window{StartHour: fp.StartHour, EndHour: fp.EndHour},
				GranularityMinutes: fp.GranularityMinutes,
				Active:             active(fp.Active),
			}
			if err := sched.CreateProvider(ctx, p); err != nil {
				return sum, fmt.Errorf("provider %q: %w", fp.Name, err)
			}
			sum.Providers++
		}

		for _, fo := range ff.Options {
			oid, err := parseOptionalID("option", fo.ID)
			if err != nil {
				return sum, err
			}
			o := &stay.FacilityOption{
				ID:          oid,
				FacilityID:  f.ID,
				Name:        fo.Name,
				NightlyRate: money.Money(fo.NightlyRate),
				MaxGuests:   fo.MaxGuests,
				Active:      active(fo.Active),
			}
			if err := stays.CreateOption(ctx, o); err != nil {
				return sum, fmt.Errorf("option %q: %w", fo.Name, err)
			}
			sum.Options++
		}
	}
	return sum, nil
}
