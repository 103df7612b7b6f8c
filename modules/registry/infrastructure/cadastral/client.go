package cadastral

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/windregistry/masterdata/pkg/logging"
)

var (
	// ErrNoMatch means the autocomplete service returned no usable result.
	ErrNoMatch = errors.New("no cadastral match")
	// ErrNoOwner means the ownership service returned no owner or a blank first one.
	ErrNoOwner = errors.New("no owner data")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Code)
}

const (
	serviceDawa = "dawa"
	serviceOis  = "ois"
)

var tracer = otel.Tracer("registry-cadastral")

type Options struct {
	DawaBaseURL string
	OisBaseURL  string
	// Timeout bounds every single request. A timeout counts as a failed call.
	Timeout time.Duration
	// Delay is the pause after every autocomplete request made by this client.
	Delay    time.Duration
	Cache    Cache
	CacheTTL time.Duration
	HTTP     *http.Client
	Logger   *logrus.Entry
	// Sleep replaces the context-aware pause, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) setDefaults() {
	if o.DawaBaseURL == "" {
		o.DawaBaseURL = "https://dawa.aws.dk"
	}
	if o.OisBaseURL == "" {
		o.OisBaseURL = "https://ois.dk"
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Cache == nil {
		o.Cache = NoCache{}
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 7 * 24 * time.Hour
	}
	if o.HTTP == nil {
		o.HTTP = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
}

// Client talks to the DAWA cadastral autocomplete service and the OIS
// ownership service. Each Client paces its own autocomplete calls, so
// parallel workers should each own one.
type Client struct {
	opts Options
}

func NewClient(opts Options) *Client {
	opts.setDefaults()
	return &Client{opts: opts}
}

type autocompleteResult struct {
	Tekst      string `json:"tekst"`
	Jordstykke *struct {
		SfeEjendomsnr flexString `json:"sfeejendomsnr"`
	} `json:"jordstykke"`
}

type ownerResult struct {
	BFE      *int64 `json:"bfe"`
	Ejerdata []struct {
		Name string `json:"name"`
	} `json:"ejerdata"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// PropertyID returns the property id (sfeejendomsnr) of the first
// autocomplete match for "<parcel no>, <district>".
func (c *Client) PropertyID(ctx context.Context, district, parcelNo string) (string, error) {
	query := fmt.Sprintf("%s, %s", strings.TrimSpace(parcelNo), strings.TrimSpace(district))
	cacheKey := "dawa:" + strings.ToLower(query)
	if id, ok := c.cached(ctx, cacheKey); ok {
		getMetrics().cacheHits.WithLabelValues(serviceDawa).Inc()
		return id, nil
	}

	ctx, span := tracer.Start(ctx, "cadastral.property_id",
		trace.WithAttributes(attribute.String("cadastral.query", query)))
	defer span.End()

	params := url.Values{}
	params.Set("per_side", "10")
	params.Set("q", query)

	var results []autocompleteResult
	err := c.getJSON(ctx, serviceDawa, c.opts.DawaBaseURL, "/jordstykker/autocomplete", params, &results)
	if pauseErr := c.opts.Sleep(ctx, c.opts.Delay); pauseErr != nil && err == nil {
		err = pauseErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(results) == 0 || results[0].Jordstykke == nil {
		return "", ErrNoMatch
	}
	id := strings.TrimSpace(string(results[0].Jordstykke.SfeEjendomsnr))
	if id == "" {
		return "", ErrNoMatch
	}
	span.SetAttributes(attribute.String("cadastral.property_id", id))
	c.store(ctx, cacheKey, id)
	return id, nil
}

// OwnerName returns the name of the first owner registered for the property id.
// A blank first entry is ErrNoOwner; later entries are not consulted.
func (c *Client) OwnerName(ctx context.Context, propertyID string) (string, error) {
	propertyID = strings.TrimSpace(propertyID)
	cacheKey := "ois:" + propertyID
	if name, ok := c.cached(ctx, cacheKey); ok {
		getMetrics().cacheHits.WithLabelValues(serviceOis).Inc()
		return name, nil
	}

	ctx, span := tracer.Start(ctx, "cadastral.owner_name",
		trace.WithAttributes(attribute.String("cadastral.property_id", propertyID)))
	defer span.End()

	params := url.Values{}
	params.Set("bfe", propertyID)

	var result ownerResult
	if err := c.getJSON(ctx, serviceOis, c.opts.OisBaseURL, "/api/ejer/get", params, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(result.Ejerdata) == 0 {
		return "", ErrNoOwner
	}
	name := strings.TrimSpace(result.Ejerdata[0].Name)
	if name == "" {
		return "", ErrNoOwner
	}
	c.store(ctx, cacheKey, name)
	return name, nil
}

func (c *Client) getJSON(ctx context.Context, service, baseURL, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	u := strings.TrimRight(baseURL, "/") + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	result := "error"
	defer func() {
		getMetrics().requestTotal.WithLabelValues(service, result).Inc()
		getMetrics().requestLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}()

	c.opts.Logger.WithFields(logrus.Fields{"service": service, "url": u}).Debug("cadastral lookup")
	resp, err := c.opts.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request", service)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		result = strconv.Itoa(resp.StatusCode)
		return &StatusError{Service: service, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s decode", service)
	}
	result = "ok"
	return nil
}

func (c *Client) cached(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.opts.Cache.Get(ctx, key)
	if err != nil {
		c.opts.Logger.WithError(err).WithField("key", key).Warn("lookup cache read failed")
		return "", false
	}
	return v, ok
}

func (c *Client) store(ctx context.Context, key, value string) {
	if err := c.opts.Cache.Set(ctx, key, value, c.opts.CacheTTL); err != nil {
		c.opts.Logger.WithError(err).WithField("key", key).Warn("lookup cache write failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
