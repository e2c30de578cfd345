// Package timezone converts between civil times in named IANA zones and UTC instants.
package timezone

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"carrental/internal/domain/shared/errkind"
)

const (
	DefaultZone   = "Asia/Karachi"
	DisplayLayout = "2006-01-02 15:04:05"
)

var (
	ErrInvalidTimezone   = fmt.Errorf("%w: invalid timezone", errkind.ErrValidation)
	ErrInvalidTimeFormat = fmt.Errorf("%w: invalid time format", errkind.ErrValidation)
)

// local layouts accepted by ToUTC, tried in order.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalizer resolves zones once and caches the loaded locations.
type Normalizer struct {
	Default string

	mu    sync.RWMutex
	cache map[string]*time.Location
}

func NewNormalizer(defaultZone string) *Normalizer {
	if strings.TrimSpace(defaultZone) == "" {
		defaultZone = DefaultZone
	}
	return &Normalizer{Default: defaultZone, cache: make(map[string]*time.Location)}
}

// ZoneOrDefault returns zone, falling back to the configured default when blank.
func (n *Normalizer) ZoneOrDefault(zone string) string {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return n.defaultZone()
	}
	return zone
}

// Location loads an IANA zone.
func (n *Normalizer) Location(zone string) (*time.Location, error) {
	zone = n.ZoneOrDefault(zone)
	n.mu.RLock()
	loc, ok := n.cache[zone]
	n.mu.RUnlock()
	if ok {
		return loc, nil
	}
	// LoadLocation accepts "" and "Local", neither of which is a stable civil zone for a booking.
	if zone == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, zone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, zone)
	}
	n.mu.Lock()
	if n.cache == nil {
		n.cache = make(map[string]*time.Location)
	}
	n.cache[zone] = loc
	n.mu.Unlock()
	return loc, nil
}

func (n *Normalizer) IsValidZone(zone string) bool {
	if strings.TrimSpace(zone) == "" {
		return false
	}
	_, err := n.Location(zone)
	return err == nil
}

// ToUTC interprets local as a wall-clock time in zone. An explicit RFC3339 offset wins over zone.
func (n *Normalizer) ToUTC(local, zone string) (time.Time, error) {
	loc, err := n.Location(zone)
	if err != nil {
		return time.Time{}, err
	}
	value := strings.TrimSpace(local)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty time", ErrInvalidTimeFormat)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, local)
}

// FromUTC renders instant as RFC3339 in zone.
func (n *Normalizer) FromUTC(instant time.Time, zone string) (string, error) {
	loc, err := n.Location(zone)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format(time.RFC3339), nil
}

// Display renders instant for humans, e.g. "2025-03-01 15:00:00".
func (n *Normalizer) Display(instant time.Time, zone string) (string, error) {
	loc, err := n.Location(zone)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format(DisplayLayout), nil
}

// MustDisplay is Display that falls back to UTC on an unknown zone.
func (n *Normalizer) MustDisplay(instant time.Time, zone string) string {
	s, err := n.Display(instant, zone)
	if err != nil {
		return instant.UTC().Format(DisplayLayout)
	}
	return s
}

func (n *Normalizer) defaultZone() string {
	if n == nil || n.Default == "" {
		return DefaultZone
	}
	return n.Default
}

// CommonZones lists the zones offered to users by default.
func CommonZones() []string {
	return []string{"UTC", "America/New_York", "Europe/London", "Asia/Karachi"}
}
