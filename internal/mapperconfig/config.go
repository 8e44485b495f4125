// Package mapperconfig holds the tunables that spec.md leaves as RFC-default
// constants in prose: PCP retry timing, NAT-PMP retry timing, discovery
// timeouts and the UPnP HTTP client timeout. Follows syncthing's lib/config
// struct-of-options pattern, with defaults applied by a small
// struct-tag-driven SetDefaults helper instead of being wired into every
// constructor by hand.
package mapperconfig

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Config holds every tunable knob used by the retry controller, discovery
// engine and mapping session. Field tags carry the RFC default so a
// zero-value Config can be turned into a fully-populated one by SetDefaults.
type Config struct {
	// PCP retry schedule (spec §4.5): initial retransmission time, maximum
	// retransmission time, and maximum retransmission count.
	PCPInitialRetransmitTime time.Duration `default:"3s"`
	PCPMaxRetransmitTime     time.Duration `default:"1024s"`
	PCPMaxRetransmitCount    int           `default:"0"` // 0 = unbounded, governed by the request lifetime

	// NAT-PMP retry schedule (spec §4.5): initial timeout doubling up to a
	// fixed retry count.
	NATPMPInitialTimeout time.Duration `default:"250ms"`
	NATPMPMaxRetries     int           `default:"9"`

	// Randomization factor applied to the PCP schedule's intervals (spec
	// §4.5's "±25%"); the NAT-PMP schedule is not randomized.
	RetryRandomizationFactor float64 `default:"0.25"`

	// DiscoveryInterfaceTimeout bounds how long discovery waits for a
	// response from a single interface's candidate gateway before moving on
	// (spec §4.6).
	DiscoveryInterfaceTimeout time.Duration `default:"10s"`

	// SSDPSearchMx is the Mx value advertised in SSDP M-SEARCH requests.
	// How long the discovery engine waits for SSDP responses is bounded by
	// DiscoveryInterfaceTimeout, not by this value.
	SSDPSearchMx int `default:"3"`

	// RefreshSafetyMargin, times four, caps the interval between retries of
	// a failed refresh in lib/portmapper. When a mapping is refreshed is
	// decided by Mapping.RefreshAt, not by this value.
	RefreshSafetyMargin time.Duration `default:"30s"`

	// UPnPHTTPTimeout bounds a single SOAP HTTP round trip.
	UPnPHTTPTimeout time.Duration `default:"10s"`

	// RequestedLifetime is the lifetime requested when creating or
	// refreshing a mapping, subject to protocol-specific caps.
	RequestedLifetime time.Duration `default:"3600s"`
}

// New returns a Config with every zero-valued field populated from its
// `default` struct tag.
func New() Config {
	var c Config
	SetDefaults(&c)
	return c
}

// SetDefaults populates the zero-valued fields of cfg (a pointer to a
// struct) from their `default` struct tags. Non-zero fields are left
// untouched, so callers can partially populate a Config before calling
// SetDefaults to fill in the rest.
func SetDefaults(cfg *Config) {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, ok := field.Tag.Lookup("default")
		if !ok {
			continue
		}
		fv := v.Field(i)
		if !fv.IsZero() {
			continue
		}
		if err := setField(fv, tag); err != nil {
			panic(fmt.Sprintf("mapperconfig: bad default tag on %s: %v", field.Name, err))
		}
	}
}

func setField(fv reflect.Value, tag string) error {
	switch fv.Kind() {
	case reflect.Int, reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(tag)
			if err != nil {
				return err
			}
			fv.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(tag, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
		return nil
	case reflect.Float64, reflect.Float32:
		f, err := strconv.ParseFloat(tag, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
		return nil
	case reflect.String:
		fv.SetString(tag)
		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(tag)
		if err != nil {
			return err
		}
		fv.SetBool(b)
		return nil
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
}
