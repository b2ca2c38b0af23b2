package ingestion

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/attribution"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/idhash"
)

// timestamp layouts accepted for occurredAt, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	domain.DateLayout,
}

var mediumChannels = map[string]string{
	"cpc":          "paid_search",
	"ppc":          "paid_search",
	"paid":         "paid_search",
	"paidsearch":   "paid_search",
	"paid_search":  "paid_search",
	"sem":          "paid_search",
	"email":        "email",
	"e-mail":       "email",
	"newsletter":   "email",
	"social":       "social",
	"social-media": "social",
	"paid_social":  "paid_social",
	"paidsocial":   "paid_social",
	"display":      "display",
	"banner":       "display",
	"cpm":          "display",
	"affiliate":    "affiliate",
	"organic":      "organic_search",
	"referral":     "referral",
	"sms":          "sms",
}

var sourceChannels = map[string]string{
	"facebook":   "social",
	"instagram":  "social",
	"twitter":    "social",
	"x":          "social",
	"linkedin":   "social",
	"tiktok":     "social",
	"pinterest":  "social",
	"youtube":    "social",
	"klaviyo":    "email",
	"mailchimp":  "email",
	"google":     "organic_search",
	"bing":       "organic_search",
	"yahoo":      "organic_search",
	"duckduckgo": "organic_search",
}

var searchHosts = []string{"google.", "bing.", "yahoo.", "duckduckgo.", "baidu.", "yandex."}

var socialHosts = []string{"facebook.", "instagram.", "t.co", "twitter.", "linkedin.", "tiktok.", "pinterest.", "youtube.", "reddit."}

// Normalize validates the semantic rules of a payload and converts it to a
// stored touchpoint. Struct-level validation runs separately.
func Normalize(tenantID string, in *domain.TouchpointInput) (*domain.Touchpoint, error) {
	var errs []domain.FieldError

	customerID := strings.TrimSpace(in.CustomerID)
	sessionID := strings.TrimSpace(in.SessionID)
	if customerID == "" && sessionID == "" {
		errs = append(errs, domain.FieldError{Field: "customerId", Message: "customerId or sessionId is required"})
	}

	var occurredAt int64
	if strings.TrimSpace(in.OccurredAt) == "" {
		errs = append(errs, domain.FieldError{Field: "occurredAt", Message: "required"})
	} else if t, ok := ParseTimestamp(in.OccurredAt); ok {
		occurredAt = t.UnixMilli()
	} else {
		errs = append(errs, domain.FieldError{Field: "occurredAt", Message: "must be an ISO-8601 timestamp"})
	}

	isConversion := in.ConversionValue != nil
	var value decimal.Decimal
	if isConversion {
		value = in.ConversionValue.Round(attribution.CreditScale)
		switch {
		case !value.IsPositive():
			errs = append(errs, domain.FieldError{Field: "conversionValue", Message: fmt.Sprintf("must be > 0 at %d decimal places", attribution.CreditScale)})
		case value.GreaterThanOrEqual(domain.MaxConversionValue):
			errs = append(errs, domain.FieldError{Field: "conversionValue", Message: "must be < " + domain.MaxConversionValue.String()})
		}
	}
	if !isConversion && in.OrderID != "" {
		errs = append(errs, domain.FieldError{Field: "orderId", Message: "requires conversionValue"})
	}
	if !isConversion && in.ConversionType != "" {
		errs = append(errs, domain.FieldError{Field: "conversionType", Message: "requires conversionValue"})
	}

	if len(errs) > 0 {
		return nil, &domain.ValidationError{Fields: errs}
	}

	tp := &domain.Touchpoint{
		TenantID:   tenantID,
		CustomerID: customerID,
		SessionID:  sessionID,
		Campaign:   strings.TrimSpace(in.Campaign),
		Source:     strings.TrimSpace(in.Source),
		Medium:     strings.TrimSpace(in.Medium),
		Content:    strings.TrimSpace(in.Content),
		Term:       strings.TrimSpace(in.Term),
		Platform:   strings.TrimSpace(in.Platform),
		DeviceType: strings.TrimSpace(in.DeviceType),
		PageURL:    strings.TrimSpace(in.PageURL),
		Referrer:   strings.TrimSpace(in.Referrer),
		OccurredAt: occurredAt,
	}
	tp.Channel = ResolveChannel(in.Channel, tp.Source, tp.Medium, tp.Referrer, tp.Campaign)

	if isConversion {
		tp.ConversionValue = value
		tp.ConversionType = strings.TrimSpace(in.ConversionType)
		if tp.ConversionType == "" {
			tp.ConversionType = domain.DefaultConversionType
		}
		tp.OrderID = strings.TrimSpace(in.OrderID)
		if len(in.ProductIDs) > 0 {
			tp.ProductIDs = append([]string(nil), in.ProductIDs...)
		}
	}

	tp.TouchpointID = strings.TrimSpace(in.TouchpointID)
	if tp.TouchpointID == "" {
		tp.TouchpointID = idhash.ComputeTouchpointID(
			tenantID,
			tp.IdentityKey(),
			tp.OccurredAt,
			tp.Channel,
			tp.Campaign,
			tp.PageURL,
			tp.OrderID,
		)
	}

	return tp, nil
}

// ParseTimestamp parses an ISO-8601 timestamp or date into UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeChannel canonicalizes an explicit channel name.
func NormalizeChannel(ch string) string {
	ch = strings.ToLower(strings.TrimSpace(ch))
	ch = strings.Join(strings.Fields(ch), "_")
	return strings.ReplaceAll(ch, "-", "_")
}

// ResolveChannel returns the explicit channel when given, otherwise infers it
// from UTM medium, UTM source, the referrer host and the campaign, in that order.
func ResolveChannel(channel, source, medium, referrer, campaign string) string {
	if ch := NormalizeChannel(channel); ch != "" {
		return ch
	}
	if ch, ok := mediumChannels[strings.ToLower(medium)]; ok {
		return ch
	}
	if ch, ok := sourceChannels[strings.ToLower(source)]; ok {
		return ch
	}
	if host := referrerHost(referrer); host != "" {
		switch {
		case hasAnyPrefix(host, searchHosts):
			return "organic_search"
		case hasAnyPrefix(host, socialHosts):
			return "social"
		default:
			return "referral"
		}
	}
	if campaign != "" {
		return "campaign"
	}
	return domain.DefaultChannel
}

func referrerHost(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func hasAnyPrefix(host string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(host, p) || host == strings.TrimSuffix(p, ".") {
			return true
		}
	}
	return false
}
