package discogs

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// OptionalInt is an integer the API may omit, send as null, or send as a digit string
type OptionalInt struct {
	Value int
	Valid bool
}

// Some returns a valid OptionalInt
func Some(v int) OptionalInt {
	return OptionalInt{Value: v, Valid: true}
}

// UnmarshalJSON accepts numbers, digit strings and null. Anything else decodes as absent.
func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	*o = OptionalInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	o.Value = n
	o.Valid = true
	return nil
}

// MarshalJSON writes the value or null
func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(o.Value)), nil
}

// Ptr returns a pointer to the value, or nil when absent
func (o OptionalInt) Ptr() *int {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// Notes holds a collection item's user notes. The API sends either a plain
// string or a list of {field_id, value} objects.
type Notes string

// UnmarshalJSON flattens note fields into one string
func (n *Notes) UnmarshalJSON(data []byte) error {
	*n = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Notes(s)
	case '[':
		var fields []struct {
			FieldID int    `json:"field_id"`
			Value   string `json:"value"`
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil
		}
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			if v := strings.TrimSpace(f.Value); v != "" {
				parts = append(parts, v)
			}
		}
		*n = Notes(strings.Join(parts, "; "))
	}
	return nil
}

// Identity is the response of GET /oauth/identity
type Identity struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	ResourceURL  string `json:"resource_url"`
	ConsumerName string `json:"consumer_name"`
}

// Pagination is the paging block of list responses
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// CollectionPage is one page of a collection folder listing
type CollectionPage struct {
	Pagination Pagination       `json:"pagination"`
	Releases   []CollectionItem `json:"releases"`
}

// CollectionItem is one entry of the collection listing
type CollectionItem struct {
	ID               OptionalInt       `json:"id"`
	InstanceID       OptionalInt       `json:"instance_id"`
	DateAdded        string            `json:"date_added"`
	Rating           int               `json:"rating"`
	Notes            Notes             `json:"notes"`
	BasicInformation *BasicInformation `json:"basic_information"`
}

// BasicInformation is the release summary embedded in collection items
type BasicInformation struct {
	ID          OptionalInt    `json:"id"`
	MasterID    OptionalInt    `json:"master_id"`
	Title       string         `json:"title"`
	Year        OptionalInt    `json:"year"`
	Artists     []ArtistCredit `json:"artists"`
	Labels      []LabelCredit  `json:"labels"`
	Formats     []Format       `json:"formats"`
	Country     string         `json:"country"`
	Genres      []string       `json:"genres"`
	Styles      []string       `json:"styles"`
	Thumb       string         `json:"thumb"`
	CoverImage  string         `json:"cover_image"`
	ResourceURL string         `json:"resource_url"`
}

// ArtistCredit is one credited artist and the word joining it to the next
type ArtistCredit struct {
	ID   OptionalInt `json:"id"`
	Name string      `json:"name"`
	ANV  string      `json:"anv"`
	Join string      `json:"join"`
	Role string      `json:"role"`
}

// LabelCredit is a label with its catalog number
type LabelCredit struct {
	ID    OptionalInt `json:"id"`
	Name  string      `json:"name"`
	Catno string      `json:"catno"`
}

// Format is one physical format descriptor of a release
type Format struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty"`
	Text         string   `json:"text"`
	Descriptions []string `json:"descriptions"`
}

// UnmarshalJSON tolerates a numeric qty
func (f *Format) UnmarshalJSON(data []byte) error {
	type plain struct {
		Name         string          `json:"name"`
		Qty          json.RawMessage `json:"qty"`
		Text         string          `json:"text"`
		Descriptions []string        `json:"descriptions"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	f.Name = p.Name
	f.Text = p.Text
	f.Descriptions = p.Descriptions
	f.Qty = ""
	if len(p.Qty) > 0 {
		var s string
		if err := json.Unmarshal(p.Qty, &s); err == nil {
			f.Qty = s
		} else {
			var n json.Number
			if err := json.Unmarshal(p.Qty, &n); err == nil {
				f.Qty = n.String()
			}
		}
	}
	return nil
}

// MarketplaceStats is the response of GET /marketplace/stats/{release_id}
type MarketplaceStats struct {
	BlockedFromSale bool        `json:"blocked_from_sale"`
	NumForSale      OptionalInt `json:"num_for_sale"`
	LowestPrice     *PriceValue `json:"lowest_price"`
}

// PriceValue is an amount with its currency
type PriceValue struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
}

// Price is the marketplace lookup result used for enrichment.
// LowestPrice nil with NumForSale 0 means "confirmed not for sale".
type Price struct {
	LowestPrice *float64
	NumForSale  *int
	Currency    string
}
