package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"messenger-relay/internal/domain"
	"messenger-relay/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLocation is a mock for the LocationProvider interface
type MockLocation struct {
	mock.Mock
}

func (m *MockLocation) Lookup(ctx context.Context, ip string) (domain.Location, error) {
	args := m.Called(ctx, ip)
	return args.Get(0).(domain.Location), args.Error(1)
}

// MockWeather is a mock for the WeatherProvider interface
type MockWeather struct {
	mock.Mock
}

func (m *MockWeather) Current(ctx context.Context, place, lang string) (*domain.CurrentConditions, error) {
	args := m.Called(ctx, place, lang)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CurrentConditions), args.Error(1)
}

// MockPages is a mock for the PageFetcher interface
type MockPages struct {
	mock.Mock
}

func (m *MockPages) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

// recordingNotifier keeps every notification it is handed.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

// recordingSink keeps every opt-in grant it is handed.
type recordingSink struct {
	grants []domain.OptInGrant
	err    error
}

func (r *recordingSink) HandOff(_ context.Context, g domain.OptInGrant) error {
	r.grants = append(r.grants, g)
	return r.err
}

type relayFixture struct {
	svc      *RelayService
	location *MockLocation
	weather  *MockWeather
	pages    *MockPages
	notifier *recordingNotifier
	optins   *recordingSink
	metrics  *observability.Metrics
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	f := &relayFixture{
		location: new(MockLocation),
		weather:  new(MockWeather),
		pages:    new(MockPages),
		notifier: &recordingNotifier{},
		optins:   &recordingSink{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}
	delivery, _ := newTestDelivery(new(MockTransport), defaultDeliveryConfig(), nil)
	f.svc = NewRelayService(delivery, Collaborators{
		Location: f.location,
		Weather:  f.weather,
		Pages:    f.pages,
		Notifier: f.notifier,
		OptIns:   f.optins,
	}, RelayConfig{
		VerifyToken:   "verify-me",
		IPInfoKey:     "ipinfo-key",
		WeatherAPIKey: "weather-key",
		DefaultCity:   "Hanoi",
		DefaultLang:   "vi",
	}, f.metrics, discardLogger())
	return f
}

func TestVerifySubscription(t *testing.T) {
	f := newRelayFixture(t)

	outcome, challenge := f.svc.VerifySubscription("subscribe", "verify-me", "1158201444")
	assert.Equal(t, domain.VerifyAccepted, outcome)
	assert.Equal(t, "1158201444", challenge)

	outcome, _ = f.svc.VerifySubscription("subscribe", "wrong", "1158201444")
	assert.Equal(t, domain.VerifyRejected, outcome)

	outcome, _ = f.svc.VerifySubscription("unsubscribe", "verify-me", "1")
	assert.Equal(t, domain.VerifyRejected, outcome)

	outcome, _ = f.svc.VerifySubscription("", "verify-me", "1")
	assert.Equal(t, domain.VerifyMalformed, outcome)

	outcome, _ = f.svc.VerifySubscription("subscribe", "", "1")
	assert.Equal(t, domain.VerifyMalformed, outcome)
}

func TestVerifySubscription_NoConfiguredToken(t *testing.T) {
	f := newRelayFixture(t)
	f.svc.cfg.VerifyToken = ""

	outcome, _ := f.svc.VerifySubscription("subscribe", "anything", "1")
	assert.Equal(t, domain.VerifyRejected, outcome)
}

func TestHandleWebhook_HandsOffOptIns(t *testing.T) {
	f := newRelayFixture(t)
	env := domain.WebhookEnvelope{
		Object: domain.PageObject,
		Entry: []domain.WebhookEntry{{
			ID: "page-1",
			Messaging: []domain.MessagingEvent{
				{Sender: domain.Party{ID: "psid-1"}, Message: &domain.IncomingMessage{MID: "m_1", Text: "hi"}},
				{Sender: domain.Party{ID: "psid-2"}, OptIn: &domain.OptIn{Payload: "weather", OneTimeNotifToken: "otn-2"}},
				{Sender: domain.Party{ID: "psid-3"}},
			},
		}},
	}

	grants, err := f.svc.HandleWebhook(context.Background(), env)
	require.NoError(t, err)

	require.Len(t, grants, 1)
	assert.Equal(t, "psid-2", grants[0].PSID)
	assert.Equal(t, "otn-2", grants[0].Token)
	assert.Equal(t, grants, f.optins.grants)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues("optin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues("other")))
}

func TestHandleWebhook_HandOffFailureDoesNotFailIntake(t *testing.T) {
	f := newRelayFixture(t)
	f.optins.err = errors.New("broker down")
	env := domain.WebhookEnvelope{
		Object: domain.PageObject,
		Entry: []domain.WebhookEntry{{Messaging: []domain.MessagingEvent{
			{Sender: domain.Party{ID: "psid-2"}, OptIn: &domain.OptIn{OneTimeNotifToken: "otn-2"}},
		}}},
	}

	grants, err := f.svc.HandleWebhook(context.Background(), env)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestHandleWebhook_RejectsNonPage(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.svc.HandleWebhook(context.Background(), domain.WebhookEnvelope{Object: "instagram"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedObject)
	assert.Empty(t, f.optins.grants)
}

func TestLookupLocation(t *testing.T) {
	f := newRelayFixture(t)
	raw := json.RawMessage(`{"ip":"1.2.3.4","city":"Da Nang","region":"Da Nang"}`)
	f.location.On("Lookup", mock.Anything, "1.2.3.4").
		Return(domain.Location{City: "Da Nang", Region: "Da Nang", Raw: raw}, nil).Once()

	res, err := f.svc.LookupLocation(context.Background(), "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, "Da Nang", res.Location)
	assert.JSONEq(t, string(raw), string(res.OriginalIPInfo))
	require.Len(t, f.notifier.notes, 1)
	assert.True(t, strings.HasPrefix(f.notifier.notes[0].Content, "Thông tin IP người dùng: "))
	assert.Contains(t, f.notifier.notes[0].Content, `"city": "Da Nang"`)
}

func TestLookupLocation_FallsBackToDefaultCity(t *testing.T) {
	f := newRelayFixture(t)
	f.location.On("Lookup", mock.Anything, "").
		Return(domain.Location{Raw: json.RawMessage(`{"ip":"10.0.0.1","bogon":true}`)}, nil).Once()

	res, err := f.svc.LookupLocation(context.Background(), "::1")
	require.NoError(t, err)
	assert.Equal(t, "Hanoi", res.Location)
	f.location.AssertExpectations(t)
}

func TestLookupLocation_MissingKey(t *testing.T) {
	f := newRelayFixture(t)
	f.svc.cfg.IPInfoKey = ""

	_, err := f.svc.LookupLocation(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
	f.location.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestCurrentWeather(t *testing.T) {
	f := newRelayFixture(t)
	temp := 31.4
	f.location.On("Lookup", mock.Anything, "1.2.3.4").
		Return(domain.Location{City: "Hue", Raw: json.RawMessage(`{"city":"Hue"}`)}, nil).Once()
	f.weather.On("Current", mock.Anything, "Hue", "en").
		Return(&domain.CurrentConditions{TempC: &temp, Text: "Sunny", IconURL: "//cdn/113.png"}, nil).Once()

	res, err := f.svc.CurrentWeather(context.Background(), "1.2.3.4", "en")
	require.NoError(t, err)

	assert.Equal(t, "Hue", res.LocationUsed)
	assert.Equal(t, domain.Weather{TempC: "31°C", ConditionText: "Sunny", ConditionIcon: "https://cdn/113.png"}, res.Weather)
	require.Len(t, f.notifier.notes, 2)
	assert.True(t, strings.HasPrefix(f.notifier.notes[1].Content, "Thông tin thời tiết: "))
}

func TestCurrentWeather_LocationFailureUsesDefaults(t *testing.T) {
	f := newRelayFixture(t)
	f.location.On("Lookup", mock.Anything, "1.2.3.4").
		Return(domain.Location{}, errors.New("ipinfo down")).Once()
	f.weather.On("Current", mock.Anything, "Hanoi", "vi").
		Return(&domain.CurrentConditions{Text: "Mưa"}, nil).Once()

	res, err := f.svc.CurrentWeather(context.Background(), "1.2.3.4", "")
	require.NoError(t, err)
	assert.Equal(t, "Hanoi", res.LocationUsed)
	f.weather.AssertExpectations(t)
}

func TestCurrentWeather_NoConditions(t *testing.T) {
	f := newRelayFixture(t)
	f.location.On("Lookup", mock.Anything, mock.Anything).
		Return(domain.Location{City: "Hue"}, nil).Once()
	f.weather.On("Current", mock.Anything, "Hue", "vi").Return(nil, nil).Once()

	_, err := f.svc.CurrentWeather(context.Background(), "1.2.3.4", "")
	assert.ErrorIs(t, err, domain.ErrWeatherNotFound)
}

func TestCurrentWeather_UpstreamError(t *testing.T) {
	f := newRelayFixture(t)
	f.location.On("Lookup", mock.Anything, mock.Anything).
		Return(domain.Location{City: "Hue"}, nil).Once()
	f.weather.On("Current", mock.Anything, "Hue", "vi").
		Return(nil, &domain.UpstreamStatusError{Service: "weather api", StatusCode: 403}).Once()

	_, err := f.svc.CurrentWeather(context.Background(), "1.2.3.4", "")
	var upstream *domain.UpstreamStatusError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 403, upstream.StatusCode)
}

func TestFetchPage(t *testing.T) {
	f := newRelayFixture(t)
	f.pages.On("Fetch", mock.Anything, "https://example.com/a").Return("<html></html>", nil).Once()

	html, err := f.svc.FetchPage(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", html)

	for _, bad := range []string{"ftp://example.com", "/relative", "https://", "::not a url"} {
		_, err := f.svc.FetchPage(context.Background(), bad)
		assert.ErrorIs(t, err, domain.ErrInvalidURL, bad)
	}
	f.pages.AssertExpectations(t)
}
