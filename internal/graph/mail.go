package graph

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"graphtoolkit/internal/audit"
	"graphtoolkit/internal/common/logger"
)

// MailMessage describes one outgoing message. BodyHTML takes precedence
// over Body when both are set.
type MailMessage struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	BodyHTML    string
	Attachments []string
}

// SendMail submits a message through POST /users/{sender}/sendMail.
func (c *Client) SendMail(ctx context.Context, sender string, msg MailMessage) error {
	c.auditLog.BeginFunction("SendMail")
	defer c.auditLog.EndFunction()

	message := models.NewMessage()
	message.SetSubject(&msg.Subject)

	body := models.NewItemBody()
	if msg.BodyHTML != "" {
		content := msg.BodyHTML
		contentType := models.HTML_BODYTYPE
		body.SetContent(&content)
		body.SetContentType(&contentType)
	} else {
		content := msg.Body
		contentType := models.TEXT_BODYTYPE
		body.SetContent(&content)
		body.SetContentType(&contentType)
	}
	message.SetBody(body)

	if len(msg.To) > 0 {
		message.SetToRecipients(createRecipients(msg.To))
	}
	if len(msg.Cc) > 0 {
		message.SetCcRecipients(createRecipients(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		message.SetBccRecipients(createRecipients(msg.Bcc))
	}

	if len(msg.Attachments) > 0 {
		attachments, err := c.createFileAttachments(msg.Attachments)
		if err != nil {
			return c.auditLog.Errorf("%w", err)
		}
		message.SetAttachments(attachments)
	}

	requestBody := users.NewItemSendMailPostRequestBody()
	requestBody.SetMessage(message)

	logger.LogDebug(c.slogger, "calling Graph sendMail", "sender", sender, "to", strings.Join(msg.To, "; "))
	if err := c.sdk.Users().ByUserId(sender).SendMail().Post(ctx, requestBody, nil); err != nil {
		return c.auditLog.Errorf("sending mail from %s failed: %w", sender, err)
	}

	c.auditLog.Append(fmt.Sprintf("mail sent from %s to %s", sender, strings.Join(msg.To, "; ")), audit.SeverityInformation)
	return nil
}

// createFileAttachments reads files and builds Graph attachment objects.
// Unreadable files are skipped with a warning; all files unreadable is an
// error.
func (c *Client) createFileAttachments(filePaths []string) ([]models.Attachmentable, error) {
	var attachments []models.Attachmentable

	for _, filePath := range filePaths {
		fileData, err := os.ReadFile(filePath)
		if err != nil {
			c.auditLog.Append(fmt.Sprintf("could not read attachment %s: %v", filePath, err), audit.SeverityWarning)
			continue
		}

		attachment := models.NewFileAttachment()
		odataType := "#microsoft.graph.fileAttachment"
		attachment.SetOdataType(&odataType)

		fileName := filepath.Base(filePath)
		attachment.SetName(&fileName)

		contentType := mime.TypeByExtension(filepath.Ext(filePath))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachment.SetContentType(&contentType)
		attachment.SetContentBytes(fileData)

		attachments = append(attachments, attachment)
	}

	if len(attachments) == 0 && len(filePaths) > 0 {
		return nil, fmt.Errorf("no valid attachments could be processed")
	}
	return attachments, nil
}

func createRecipients(emails []string) []models.Recipientable {
	recipients := make([]models.Recipientable, len(emails))
	for i, email := range emails {
		recipient := models.NewRecipient()
		emailAddress := models.NewEmailAddress()
		address := email
		emailAddress.SetAddress(&address)
		recipient.SetEmailAddress(emailAddress)
		recipients[i] = recipient
	}
	return recipients
}
