// Package settings is the hot-readable configuration surface for the
// auction core (C1). It wraps the process-wide viper instance that
// config.Load already populated, and watches the backing file for changes
// so a key update is visible within one poll cycle without a restart.
//
// Callers must read fresh on every use — a Job's lifecycle can span many
// hours, far longer than any single settings value should be cached.
package settings

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/aeromarket/transfercore/internal/model"
)

// Keys — one viper key per setting.
const (
	keyDefaultBiddingWindowHours = "AUCTION_DEFAULT_BIDDING_WINDOW_HOURS"
	keyReturnBiddingWindowHours  = "AUCTION_RETURN_BIDDING_WINDOW_HOURS"
	keyAcceptanceWindowMinutes   = "AUCTION_ACCEPTANCE_WINDOW_MINUTES"
	keyMinBidPercent             = "AUCTION_MIN_BID_PERCENT"
	keyMaxBidPercent             = "AUCTION_MAX_BID_PERCENT"
	keyPostcodeFilteringEnabled  = "AUCTION_POSTCODE_FILTERING_ENABLED"
)

// Provider reads settings straight off viper's live state. It holds no
// cached copy: every method call is a fresh lookup.
type Provider struct{}

// NewProvider returns a Provider. Watching the config file and logging its
// reloads is enabled once, process-wide, by config.Load's caller
// (cmd/server/main.go) via Watch.
func NewProvider() *Provider {
	return &Provider{}
}

// Watch starts viper's file watcher and logs every reload. Safe to call
// once at startup; viper itself is a package-level singleton so a second
// call would just attach a second listener.
func (p *Provider) Watch() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("settings: config reloaded")
	})
	viper.WatchConfig()
}

// BiddingWindowHours returns the bidding-window duration, in hours, for the
// given journey type: RETURN legs get a shorter window.
func (p *Provider) BiddingWindowHours(journey model.JourneyType) int {
	if journey == model.JourneyReturn {
		return viper.GetInt(keyReturnBiddingWindowHours)
	}
	return viper.GetInt(keyDefaultBiddingWindowHours)
}

// AcceptanceWindowMinutes returns how long an operator has to respond to an
// offer before the Timer Service escalates to the next bidder.
func (p *Provider) AcceptanceWindowMinutes() int {
	return viper.GetInt(keyAcceptanceWindowMinutes)
}

// MinBidPercent and MaxBidPercent bound an acceptable bid as a fraction of
// the booking's customerPrice, checked once at placement time only.
func (p *Provider) MinBidPercent() float64 { return viper.GetFloat64(keyMinBidPercent) }
func (p *Provider) MaxBidPercent() float64 { return viper.GetFloat64(keyMaxBidPercent) }

// PostcodeFilteringEnabled toggles the Eligibility Filter's service-area
// postcode-prefix rule off for operators testing in regions
// where postcode data isn't populated yet.
func (p *Provider) PostcodeFilteringEnabled() bool {
	return viper.GetBool(keyPostcodeFilteringEnabled)
}

// PostcodePrefix returns the first 3 characters of a postcode, upper-cased,
// matching the Eligibility Filter's service-area comparison rule.
func PostcodePrefix(postcode string) string {
	p := strings.ToUpper(strings.TrimSpace(postcode))
	if len(p) > 3 {
		p = p[:3]
	}
	return p
}
