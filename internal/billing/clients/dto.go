package clients

// ClientRequest is the payload for creating or replacing a client.
type ClientRequest struct {
	Type        Type    `json:"type" validate:"required,oneof=INDIVIDUAL COMPANY"`
	FirstName   string  `json:"firstName" validate:"max=100"`
	LastName    string  `json:"lastName" validate:"required_if=Type INDIVIDUAL,max=100"`
	CompanyName string  `json:"companyName" validate:"required_if=Type COMPANY,max=200"`
	SIRET       string  `json:"siret" validate:"omitempty,len=14,numeric"`
	Email       string  `json:"email" validate:"omitempty,email,max=254"`
	Phone       string  `json:"phone" validate:"max=30"`
	Address     Address `json:"address"`
}

// ListFilters narrows a client listing.
type ListFilters struct {
	Search string
	Limit  int
	Offset int
}

// ListResponse is a page of clients.
type ListResponse struct {
	Items []Client `json:"items"`
	Total int      `json:"total"`
}
