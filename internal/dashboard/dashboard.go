// Package dashboard holds the weather dashboard controller: per-viewer session state,
// the fetch cycle state machine, and the view snapshot the web and terminal front ends
// paint from.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// Location label texts.
const (
	LabelLoading = "Loading..."
	LabelError   = "Error loading weather data"
)

// DefaultNarrowBreakpoint is the viewport width below which choosing a section closes
// the sidebar.
const DefaultNarrowBreakpoint = 992

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrUnknownUnit    = errors.New("unknown unit")
	// ErrStaleCycle is returned by Fetch when a newer cycle was issued before this one
	// resolved. Its result is discarded.
	ErrStaleCycle = errors.New("fetch cycle superseded")
)

// Section identifies one of the tabbed panels.
type Section string

const (
	SectionCurrent Section = "current"
	SectionHourly  Section = "hourly"
	SectionDaily   Section = "daily"
)

// Sections lists the panels in navigation order.
var Sections = []Section{SectionCurrent, SectionHourly, SectionDaily}

// Title is the navigation link text.
func (s Section) Title() string {
	switch s {
	case SectionCurrent:
		return "Current Weather"
	case SectionHourly:
		return "Hourly Forecast"
	case SectionDaily:
		return "Daily Forecast"
	}
	return string(s)
}

// ParseSection matches a navigation data-section value.
func ParseSection(s string) (Section, error) {
	id := Section(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sections {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
}

// Phase is the fetch cycle state: idle → loading → rendered | errored.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseRendered Phase = "rendered"
	PhaseErrored  Phase = "errored"
)

// Fetcher runs one fetch cycle for a city.
type Fetcher interface {
	GetReport(ctx context.Context, city string) (models.Report, error)
}

// Config holds controller settings shared by every session.
type Config struct {
	DefaultCity      string
	DefaultUnit      models.Unit
	NarrowBreakpoint int
	HourlySlots      int
	DailyOrder       forecast.Order
	// Timezone for time and day labels: "local", "city", or an IANA zone name.
	Timezone      string
	IconBaseURL   string
	CityMinLength int
	CityMaxLength int
}

func (c Config) withDefaults() Config {
	if c.DefaultCity == "" {
		c.DefaultCity = "London"
	}
	if c.DefaultUnit == "" {
		c.DefaultUnit = models.UnitMetric
	}
	if c.NarrowBreakpoint <= 0 {
		c.NarrowBreakpoint = DefaultNarrowBreakpoint
	}
	if c.HourlySlots <= 0 {
		c.HourlySlots = forecast.DefaultHourlySlots
	}
	if c.DailyOrder == "" {
		c.DailyOrder = forecast.OrderCalendar
	}
	if c.IconBaseURL == "" {
		c.IconBaseURL = client.DefaultIconBaseURL
	}
	return c
}

// Session is one viewer's dashboard. All methods are safe for concurrent use; the
// provider is called without holding the session lock.
type Session struct {
	id      string
	cfg     Config
	fetcher Fetcher
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	unit        models.Unit
	activeCity  string
	searchInput string
	section     Section
	sidebarOpen bool
	phase       Phase
	label       string
	lastError   client.ErrorCategory
	model       *rendered
	seq         uint64
	cancel      context.CancelFunc
}

// NewSession creates a session in the idle phase. A nil logger disables logging.
func NewSession(id string, cfg Config, fetcher Fetcher, logger *zap.Logger) *Session {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:         id,
		cfg:        cfg,
		fetcher:    fetcher,
		logger:     logger.With(zap.String("session_id", id)),
		now:        time.Now,
		unit:       cfg.DefaultUnit,
		activeCity: cfg.DefaultCity,
		section:    SectionCurrent,
		phase:      PhaseIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Init loads the default city.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	s.activeCity = s.cfg.DefaultCity
	s.mu.Unlock()
	return s.Fetch(ctx, s.cfg.DefaultCity)
}

// ToggleSidebar flips the sidebar and returns the new state. Main content is shifted
// exactly when the sidebar is open.
func (s *Session) ToggleSidebar() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidebarOpen = !s.sidebarOpen
	return s.sidebarOpen
}

// ShowSection activates one panel. viewportWidth is the client width in pixels; a
// positive width below the narrow breakpoint closes an open sidebar. Zero means unknown.
func (s *Session) ShowSection(id string, viewportWidth int) error {
	section, err := ParseSection(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.section = section
	if viewportWidth > 0 && viewportWidth < s.cfg.NarrowBreakpoint {
		s.sidebarOpen = false
	}
	return nil
}

// SetUnit switches the display unit. Temperatures are recomputed from the stored model;
// nothing is fetched.
func (s *Session) SetUnit(unit models.Unit) error {
	if unit != models.UnitMetric && unit != models.UnitImperial {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	s.mu.Lock()
	changed := s.unit != unit
	s.unit = unit
	s.mu.Unlock()
	if changed {
		observability.UnitTogglesTotal.WithLabelValues(string(unit)).Inc()
	}
	return nil
}

// SetSearchInput replaces the search box contents.
func (s *Session) SetSearchInput(input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchInput = input
}

// SubmitSearch reads the trimmed search input. Blank input is a no-op and returns false.
// Otherwise the city becomes active, the input is cleared, and a fetch cycle runs; the
// returned error is the cycle's.
func (s *Session) SubmitSearch(ctx context.Context) (bool, error) {
	s.mu.Lock()
	city := strings.TrimSpace(s.searchInput)
	if city == "" {
		s.mu.Unlock()
		observability.SearchesTotal.WithLabelValues("ignored").Inc()
		return false, nil
	}
	s.activeCity = city
	s.searchInput = ""
	s.mu.Unlock()

	observability.RecordSearch(city)
	return true, s.Fetch(ctx, city)
}

// Search sets the input and submits it.
func (s *Session) Search(ctx context.Context, input string) (bool, error) {
	s.SetSearchInput(input)
	return s.SubmitSearch(ctx)
}

// Fetch runs one fetch cycle. The label reads Loading... before the provider is called.
// Each cycle takes the next request id and cancels the cycle before it; a cycle whose
// id is no longer the latest when it resolves is discarded with ErrStaleCycle. Any
// failure clears the panels and shows the generic error label.
func (s *Session) Fetch(ctx context.Context, city string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.seq++
	id := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.phase = PhaseLoading
	s.label = LabelLoading
	s.lastError = ""
	cfg := s.cfg
	s.mu.Unlock()

	logger := s.logger
	if reqLogger := observability.LoggerFromContext(ctx, nil); reqLogger != nil {
		logger = reqLogger.With(zap.String("session_id", s.id))
	}
	logger = logger.With(zap.Uint64("request_id", id), zap.String("city", city))
	start := s.now()

	model, err := s.cycle(ctx, city, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.seq {
		observability.FetchCyclesTotal.WithLabelValues("discarded").Inc()
		logger.Debug("discarding superseded fetch cycle", zap.Uint64("latest_request_id", s.seq))
		return ErrStaleCycle
	}
	s.cancel = nil
	observability.FetchCycleDuration.Observe(s.now().Sub(start).Seconds())

	if err != nil {
		category := client.CategorizeError(err)
		s.phase = PhaseErrored
		s.label = LabelError
		s.lastError = category
		s.model = nil
		observability.FetchCyclesTotal.WithLabelValues("errored").Inc()
		observability.FetchErrorsTotal.WithLabelValues(string(category)).Inc()
		traffic.Record(traffic.Errored)
		logger.Warn("error fetching weather data", zap.String("category", string(category)), zap.Error(err))
		return err
	}

	s.phase = PhaseRendered
	s.label = model.location
	s.model = model
	observability.FetchCyclesTotal.WithLabelValues("rendered").Inc()
	traffic.Record(traffic.Rendered)
	logger.Debug("fetch cycle rendered", zap.String("location", model.location))
	return nil
}

// cycle validates the city, fetches the report, and renders it. It runs unlocked.
func (s *Session) cycle(ctx context.Context, city string, cfg Config) (*rendered, error) {
	city, err := validation.ValidateCity(city, cfg.CityMinLength, cfg.CityMaxLength)
	if err != nil {
		return nil, fmt.Errorf("validate city: %w", err)
	}
	report, err := s.fetcher.GetReport(ctx, city)
	if err != nil {
		return nil, err
	}
	return render(report, cfg)
}

// SectionTab is one navigation link.
type SectionTab struct {
	ID     Section `json:"id"`
	Title  string  `json:"title"`
	Active bool    `json:"active"`
}

// View is an immutable snapshot of the dashboard.
type View struct {
	SessionID     string       `json:"sessionId"`
	Unit          models.Unit  `json:"unit"`
	UnitSymbol    string       `json:"unitSymbol"`
	ActiveCity    string       `json:"activeCity"`
	SearchInput   string       `json:"searchInput"`
	ActiveSection Section      `json:"activeSection"`
	Sections      []SectionTab `json:"sections"`
	SidebarOpen   bool         `json:"sidebarOpen"`
	MainShifted   bool         `json:"mainShifted"`
	Phase         Phase        `json:"phase"`
	LocationLabel string       `json:"locationLabel"`
	RequestID     uint64       `json:"requestId"`
	Current       *CurrentView `json:"current,omitempty"`
	Hourly        []HourlyView `json:"hourly"`
	Daily         []DailyView  `json:"daily"`
}

// View returns the current snapshot with temperatures displayed in the selected unit.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:     s.id,
		Unit:          s.unit,
		UnitSymbol:    s.unit.Symbol(),
		ActiveCity:    s.activeCity,
		SearchInput:   s.searchInput,
		ActiveSection: s.section,
		SidebarOpen:   s.sidebarOpen,
		MainShifted:   s.sidebarOpen,
		Phase:         s.phase,
		LocationLabel: s.label,
		RequestID:     s.seq,
		Hourly:        []HourlyView{},
		Daily:         []DailyView{},
	}
	for _, sec := range Sections {
		v.Sections = append(v.Sections, SectionTab{ID: sec, Title: sec.Title(), Active: sec == s.section})
	}
	if s.model != nil {
		v.Current = s.model.current(s.unit, s.cfg.IconBaseURL)
		v.Hourly = s.model.hourlyViews(s.unit, s.cfg.IconBaseURL)
		v.Daily = s.model.dailyViews(s.unit, s.cfg.IconBaseURL)
	}
	return v
}

// LastErrorCategory returns the cause of the most recent failed cycle, or "".
func (s *Session) LastErrorCategory() client.ErrorCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
