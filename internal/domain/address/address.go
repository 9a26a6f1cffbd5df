// Package address holds the user's shipping address book: saved address
// records, draft validation, and single-default selection.
package address

// Address is a saved shipping address. At most one address in a user's book
// carries IsDefault; SelectDefault enforces that.
type Address struct {
	ID         string `json:"id,omitempty"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	IsDefault  bool   `json:"isDefault"`
}

// Draft is an address under construction, validated before persistence.
type Draft struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	IsDefault  bool   `json:"isDefault"`
}

// SelectDefault returns a new address list in which exactly the address with
// the given ID is the default and the flag is cleared everywhere else.
func SelectDefault(addrs []Address, id string) []Address {
	out := make([]Address, len(addrs))
	for i, a := range addrs {
		a.IsDefault = a.ID == id
		out[i] = a
	}
	return out
}
