package amocrm

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"crm-audit-toolkit/internal/dataset"
)

// Member columns read by PushLeads and ExportForImport.
const (
	ColUsername    = "username"
	ColFirstName   = "first_name"
	ColLastName    = "last_name"
	ColSourceGroup = "source_group"
)

// PushOptions controls how members become leads.
type PushOptions struct {
	// Source is attached to every lead as a tag.
	Source            string
	PipelineID        int
	StatusID          int
	ResponsibleUserID int
	// SkipExisting skips members whose username already matches a contact.
	SkipExisting bool
	Tags         []string
}

// DefaultPushOptions tags leads "telegram" and skips existing contacts.
func DefaultPushOptions() PushOptions {
	return PushOptions{Source: "telegram", SkipExisting: true}
}

// PushResult counts what PushLeads did.
type PushResult struct {
	ContactsCreated int `json:"contacts_created"`
	LeadsCreated    int `json:"leads_created"`
	Skipped         int `json:"skipped"`
	TotalProcessed  int `json:"total_processed"`
}

// PushLeads creates a contact and a lead for every member row. Members need
// at least one of username, first_name or last_name; phone is optional.
func (c *Client) PushLeads(ctx context.Context, members *dataset.Table, opts PushOptions) (PushResult, error) {
	result := PushResult{TotalProcessed: members.Len()}

	tags := append([]string{}, opts.Tags...)
	if opts.Source != "" {
		tags = append(tags, opts.Source)
	}

	var (
		contacts  []Contact
		leadNames []string
	)
	for i := 0; i < members.Len(); i++ {
		username := strings.TrimPrefix(members.Value(i, ColUsername), "@")
		firstName := members.Value(i, ColFirstName)
		lastName := members.Value(i, ColLastName)
		phone := members.Value(i, dataset.ColPhone)

		fullName := strings.TrimSpace(firstName + " " + lastName)
		if fullName == "" {
			fullName = username
		}

		if opts.SkipExisting && username != "" {
			existing, err := c.FindContact(ctx, username)
			if err != nil {
				return result, err
			}
			if existing != nil {
				result.Skipped++
				continue
			}
		}

		contact := Contact{
			RequestID: strconv.Itoa(len(contacts)),
			FirstName: firstName,
			LastName:  lastName,
		}
		if contact.FirstName == "" {
			contact.FirstName = username
		}
		if username != "" {
			contact.CustomFieldsValues = append(contact.CustomFieldsValues, CustomField{
				FieldCode: "IM",
				Values:    []FieldValue{{Value: "@" + username, EnumCode: "TELEGRAM"}},
			})
		}
		if phone != "" {
			contact.CustomFieldsValues = append(contact.CustomFieldsValues, CustomField{
				FieldCode: "PHONE",
				Values:    []FieldValue{{Value: phone}},
			})
		}
		contacts = append(contacts, contact)
		leadNames = append(leadNames, fullName)
	}

	if len(contacts) == 0 {
		return result, nil
	}
	created, err := c.CreateContacts(ctx, contacts)
	result.ContactsCreated = len(created)
	if err != nil {
		return result, err
	}

	names := make(map[string]string, len(contacts))
	for i, contact := range contacts {
		names[contact.RequestID] = leadNames[i]
	}
	// Without request ids only a complete, same-length response can be
	// matched by position.
	positional := len(created) == len(contacts)

	leads := make([]Lead, 0, len(created))
	for i, stub := range created {
		name, ok := names[stub.RequestID]
		if !ok && positional && stub.RequestID == "" {
			name, ok = leadNames[i], true
		}
		if !ok {
			c.logger.Warn("created contact not matched to a member", "contact_id", stub.ID, "request_id", stub.RequestID)
			continue
		}
		delete(names, stub.RequestID)

		embedded := &LeadEmbedded{Contacts: []EntityRef{{ID: stub.ID}}}
		for _, tag := range tags {
			embedded.Tags = append(embedded.Tags, Tag{Name: tag})
		}
		leads = append(leads, Lead{
			Name:              "TG Lead: " + name,
			PipelineID:        opts.PipelineID,
			StatusID:          opts.StatusID,
			ResponsibleUserID: opts.ResponsibleUserID,
			Embedded:          embedded,
		})
	}

	createdLeads, err := c.CreateLeads(ctx, leads)
	result.LeadsCreated = len(createdLeads)
	if err != nil {
		return result, err
	}
	c.logger.Info("push complete",
		"contacts_created", result.ContactsCreated,
		"leads_created", result.LeadsCreated,
		"skipped", result.Skipped,
		"total_processed", result.TotalProcessed,
	)
	return result, nil
}

// ExportForImport writes members as a CSV laid out for the AmoCRM import
// screen, with a UTF-8 BOM.
func ExportForImport(members *dataset.Table, w io.Writer) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Имя", "Фамилия", "Телефон", "Telegram", "Примечание", "Теги"}); err != nil {
		return err
	}
	for i := 0; i < members.Len(); i++ {
		telegram := ""
		if username := strings.TrimPrefix(members.Value(i, ColUsername), "@"); username != "" {
			telegram = "@" + username
		}
		note := ""
		if group := members.Value(i, ColSourceGroup); group != "" {
			note = "Из группы: " + group
		}
		record := []string{
			members.Value(i, ColFirstName),
			members.Value(i, ColLastName),
			members.Value(i, dataset.ColPhone),
			telegram,
			note,
			"telegram,parsed",
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteImportCSV writes ExportForImport output to path.
func WriteImportCSV(members *dataset.Table, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportForImport(members, file)
}
