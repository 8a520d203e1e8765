package destination

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
)

// keyProperty is the rich_text property every target database carries for
// dedup lookups.
const keyProperty = "Key"

// titleProperty is the name of the title property in every target database.
const titleProperty = "Name"

// notionText caps rich_text content at Notion's per-block limit.
const notionTextLimit = 2000

// Notion syncs records into one Notion database per kind. Upsert queries the
// database for a page whose Key property equals the record key and updates
// it, or creates a new page.
type Notion struct {
	client    *notionapi.Client
	databases map[Kind]string
	logger    *zap.Logger
}

// NotionConfig maps record kinds onto database IDs. Kinds with an empty ID
// are dropped with a debug log instead of failing.
type NotionConfig struct {
	Token     string
	PapersDB  string
	ReviewsDB string
	MailLogDB string
	BillingDB string
}

// NewNotion creates the Notion destination.
func NewNotion(cfg NotionConfig, logger *zap.Logger) (*Notion, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("notion token required")
	}
	return &Notion{
		client: notionapi.NewClient(notionapi.Token(cfg.Token)),
		databases: map[Kind]string{
			KindPaper:   cfg.PapersDB,
			KindReview:  cfg.ReviewsDB,
			KindMailLog: cfg.MailLogDB,
			KindBilling: cfg.BillingDB,
		},
		logger: logger,
	}, nil
}

func (n *Notion) Upsert(ctx context.Context, rec Record) error {
	dbID, ok := n.databases[rec.Kind]
	if !ok {
		return fmt.Errorf("no database for kind %q", rec.Kind)
	}
	if dbID == "" {
		n.logger.Debug("no database configured for kind, dropping record",
			zap.String("kind", string(rec.Kind)),
			zap.String("key", rec.Key))
		return nil
	}

	props := buildProperties(rec)

	pageID, err := n.findByKey(ctx, dbID, rec.Key)
	if err != nil {
		return fmt.Errorf("notion query %s: %w", rec.Kind, err)
	}

	if pageID != "" {
		_, err = n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
			Properties: props,
		})
		if err != nil {
			return fmt.Errorf("notion update %s/%s: %w", rec.Kind, rec.Key, err)
		}
		return nil
	}

	_, err = n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("notion create %s/%s: %w", rec.Kind, rec.Key, err)
	}
	return nil
}

// findByKey returns the page whose Key property equals key, or "".
func (n *Notion) findByKey(ctx context.Context, dbID, key string) (string, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(dbID), &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: keyProperty,
			RichText: &notionapi.TextFilterCondition{Equals: key},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// buildProperties maps a record's typed fields onto Notion property values.
func buildProperties(rec Record) notionapi.Properties {
	props := notionapi.Properties{
		titleProperty: notionapi.TitleProperty{
			Title: richText(truncate(rec.Title, notionTextLimit)),
		},
		keyProperty: notionapi.RichTextProperty{
			RichText: richText(rec.Key),
		},
	}

	for name, v := range rec.Fields {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
			switch name {
			case FieldStatus, FieldCategory, FieldAccount, FieldCurrency, FieldVenueType:
				props[name] = notionapi.SelectProperty{Select: notionapi.Option{Name: val}}
			default:
				props[name] = notionapi.RichTextProperty{RichText: richText(truncate(val, notionTextLimit))}
			}
		case bool:
			props[name] = notionapi.CheckboxProperty{Checkbox: val}
		case int:
			props[name] = notionapi.NumberProperty{Number: float64(val)}
		case float64:
			props[name] = notionapi.NumberProperty{Number: val}
		case time.Time:
			d := notionapi.Date(val)
			props[name] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
		default:
			props[name] = notionapi.RichTextProperty{RichText: richText(truncate(fmt.Sprint(val), notionTextLimit))}
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var _ Destination = (*Notion)(nil)
