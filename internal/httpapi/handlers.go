package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/MagnunAVF/shorturls/internal/shortener"
)

type createRequest struct {
	URL string `json:"url"`
	// Validity is in minutes; absent or zero selects the default.
	Validity  minutes `json:"validity"`
	Shortcode string  `json:"shortcode"`
}

var errValidity = fmt.Errorf("%w: validity must be a whole number of minutes", shortener.ErrInvalidInput)

// minutes accepts a JSON integer or a string holding one.
type minutes int64

func (m *minutes) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	// Out-of-range values saturate and are rejected by ValidityFromMinutes.
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return errValidity
	}
	*m = minutes(n)
	return nil
}

type createResponse struct {
	ShortLink string `json:"shortLink"`
	Expiry    string `json:"expiry"`
}

type clickResponse struct {
	Timestamp string  `json:"timestamp"`
	Referrer  *string `json:"referrer"`
	IPAddress *string `json:"ip_address"`
}

type statsResponse struct {
	OriginalURL string          `json:"original_url"`
	CreatedAt   string          `json:"created_at"`
	Expiry      string          `json:"expiry"`
	TotalClicks int             `json:"total_clicks"`
	Clicks      []clickResponse `json:"clicks"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Server) create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		if errors.Is(err, shortener.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: malformed request body", shortener.ErrInvalidInput)
	}
	validity, err := shortener.ValidityFromMinutes(int64(req.Validity))
	if err != nil {
		return err
	}

	m, err := s.svc.Allocate(c.UserContext(), shortener.AllocateRequest{
		TargetURL:  req.URL,
		Validity:   validity,
		CustomCode: req.Shortcode,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(createResponse{
		ShortLink: s.cfg.BaseURL + "/" + m.Code,
		Expiry:    formatTime(m.ExpiresAt),
	})
}

func (s *Server) redirect(c *fiber.Ctx) error {
	target, err := s.svc.Resolve(c.UserContext(), c.Params("shortcode"), shortener.Visit{
		Referrer: c.Get(fiber.HeaderReferer),
		ClientIP: c.IP(),
	})
	if err != nil {
		return err
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (s *Server) stats(c *fiber.Ctx) error {
	st, err := s.svc.Stats(c.UserContext(), c.Params("shortcode"))
	if err != nil {
		return err
	}

	return c.JSON(statsResponse{
		OriginalURL: st.Mapping.TargetURL,
		CreatedAt:   formatTime(st.Mapping.CreatedAt),
		Expiry:      formatTime(st.Mapping.ExpiresAt),
		TotalClicks: st.TotalClicks,
		Clicks: lo.Map(st.Clicks, func(ev shortener.ClickEvent, _ int) clickResponse {
			return clickResponse{
				Timestamp: formatTime(ev.Timestamp),
				Referrer:  lo.EmptyableToPtr(ev.Referrer),
				IPAddress: lo.EmptyableToPtr(ev.ClientIP),
			}
		}),
	})
}
