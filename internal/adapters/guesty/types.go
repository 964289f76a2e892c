package guesty

import "encoding/json"

// Reservation is a raw remote reservation. Guesty has shipped several
// field-name variants over time (id/_id, startDate/checkIn); all variants are
// kept here and resolved during normalization.
type Reservation struct {
	ID        string      `json:"id"`
	AltID     string      `json:"_id"`
	ListingID string      `json:"listingId"`
	Listing   *ListingRef `json:"listing"`
	Guest     *Guest      `json:"guest"`
	StartDate string      `json:"startDate"`
	CheckIn   string      `json:"checkIn"`
	EndDate   string      `json:"endDate"`
	CheckOut  string      `json:"checkOut"`
	Status    string      `json:"status"`

	// Raw is the unmodified remote record, preserved for forward-compatibility
	Raw json.RawMessage `json:"-"`
}

// ListingRef is the nested listing object variant
type ListingRef struct {
	ID string `json:"_id"`
}

// Guest holds the guest name variants
type Guest struct {
	FullName string `json:"fullName"`
	Name     string `json:"name"`
}

// ReservationID resolves the id variants (id preferred over _id)
func (r Reservation) ReservationID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.AltID
}

// TokenResponse is the OAuth token endpoint payload
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
