package amocrm

// FieldValue is one value of a custom field.
type FieldValue struct {
	Value    string `json:"value"`
	EnumCode string `json:"enum_code,omitempty"`
}

// CustomField is a custom field addressed by its system code.
type CustomField struct {
	FieldCode string       `json:"field_code"`
	Values    []FieldValue `json:"values"`
}

// Contact is a contact entity. RequestID is echoed back by the create
// endpoint and ties a created stub to the submitted contact.
type Contact struct {
	ID                 int           `json:"id,omitempty"`
	RequestID          string        `json:"request_id,omitempty"`
	Name               string        `json:"name,omitempty"`
	FirstName          string        `json:"first_name,omitempty"`
	LastName           string        `json:"last_name,omitempty"`
	CustomFieldsValues []CustomField `json:"custom_fields_values,omitempty"`
}

// EntityRef links to an existing entity by id.
type EntityRef struct {
	ID int `json:"id"`
}

type Tag struct {
	Name string `json:"name"`
}

// LeadEmbedded carries the contacts and tags attached to a lead.
type LeadEmbedded struct {
	Contacts []EntityRef `json:"contacts,omitempty"`
	Tags     []Tag       `json:"tags,omitempty"`
}

type Lead struct {
	ID                int           `json:"id,omitempty"`
	Name              string        `json:"name,omitempty"`
	Price             int           `json:"price,omitempty"`
	PipelineID        int           `json:"pipeline_id,omitempty"`
	StatusID          int           `json:"status_id,omitempty"`
	ResponsibleUserID int           `json:"responsible_user_id,omitempty"`
	Embedded          *LeadEmbedded `json:"_embedded,omitempty"`
}

// PipelineStatus is one stage of a pipeline.
type PipelineStatus struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

type Pipeline struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsMain   bool   `json:"is_main"`
	Embedded struct {
		Statuses []PipelineStatus `json:"statuses"`
	} `json:"_embedded"`
}

type contactsResponse struct {
	Embedded struct {
		Contacts []Contact `json:"contacts"`
	} `json:"_embedded"`
}

type leadsResponse struct {
	Embedded struct {
		Leads []Lead `json:"leads"`
	} `json:"_embedded"`
}

type pipelinesResponse struct {
	Embedded struct {
		Pipelines []Pipeline `json:"pipelines"`
	} `json:"_embedded"`
}
