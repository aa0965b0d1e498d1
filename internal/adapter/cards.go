package adapter

import "github.com/teamsbridge/teamsbridge/internal/models"

// adaptiveCardContentType is the attachment content type Teams renders
// as an Adaptive Card.
const adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Card is a structured reply rendered as an Adaptive Card.
type Card struct {
	Title  string
	Link   string
	Body   string
	Color  string
	Fields []CardField
}

// CardField is one label/value pair shown in the card's fact set.
type CardField struct {
	Label string
	Value string
}

// AdaptiveCard is the Adaptive Card wire format.
type AdaptiveCard struct {
	Type    string            `json:"type"`
	Version string            `json:"version"`
	Body    []AdaptiveElement `json:"body"`
	Actions []AdaptiveAction  `json:"actions,omitempty"`
}

// AdaptiveElement is an element in an Adaptive Card body.
type AdaptiveElement struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Size      string         `json:"size,omitempty"`
	Weight    string         `json:"weight,omitempty"`
	Color     string         `json:"color,omitempty"`
	Wrap      bool           `json:"wrap,omitempty"`
	Separator bool           `json:"separator,omitempty"`
	Facts     []AdaptiveFact `json:"facts,omitempty"`
}

// AdaptiveFact is a fact in a FactSet element.
type AdaptiveFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// AdaptiveAction is an action button on an Adaptive Card.
type AdaptiveAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// cardColor maps the generic severity color names to the Adaptive Card
// palette.
func cardColor(name string) string {
	switch name {
	case "red":
		return "attention"
	case "yellow":
		return "warning"
	case "green":
		return "good"
	case "blue":
		return "accent"
	default:
		return "default"
	}
}

// Render builds the Adaptive Card payload for the card.
func (c *Card) Render() *AdaptiveCard {
	card := &AdaptiveCard{
		Type:    "AdaptiveCard",
		Version: "1.4",
	}

	if c.Title != "" {
		card.Body = append(card.Body, AdaptiveElement{
			Type:   "TextBlock",
			Text:   c.Title,
			Size:   "large",
			Weight: "bolder",
			Color:  cardColor(c.Color),
		})
	}
	if c.Body != "" {
		card.Body = append(card.Body, AdaptiveElement{
			Type:      "TextBlock",
			Text:      c.Body,
			Wrap:      true,
			Separator: true,
		})
	}
	if len(c.Fields) > 0 {
		facts := make([]AdaptiveFact, 0, len(c.Fields))
		for _, f := range c.Fields {
			facts = append(facts, AdaptiveFact{Title: f.Label, Value: f.Value})
		}
		card.Body = append(card.Body, AdaptiveElement{Type: "FactSet", Facts: facts})
	}
	if c.Link != "" {
		card.Actions = append(card.Actions, AdaptiveAction{
			Type:  "Action.OpenUrl",
			Title: "Open",
			URL:   c.Link,
		})
	}
	return card
}

// Attachment wraps the rendered card as an activity attachment.
func (c *Card) Attachment() models.Attachment {
	return models.Attachment{
		ContentType: adaptiveCardContentType,
		Content:     c.Render(),
	}
}
