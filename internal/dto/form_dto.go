package dto

type CreateFormRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Enabled     *bool   `json:"enabled"`
	RedirectURL *string `json:"redirect_url"`
}

// UpdateFormRequest changes only the fields that are present.
type UpdateFormRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Enabled     *bool   `json:"enabled"`
	RedirectURL *string `json:"redirect_url"`
}

type CreateFieldRequest struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type ReorderFieldsRequest struct {
	FieldIDs []uint `json:"field_ids"`
}
