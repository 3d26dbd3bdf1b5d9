package mailqueue

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const licenseDeliverySubject = "Your %s license key"

const licenseDeliveryText = `Thanks for your purchase!

Your {{.Product}} license key:

    {{.Key}}

Keep this email; you will need the key to activate the product on your devices.
`

const licenseDeliveryHTML = `<html><body>
<p>Thanks for your purchase!</p>
<p>Your {{.Product}} license key:</p>
<p style="font-family:monospace;font-size:1.2em"><b>{{.Key}}</b></p>
<p>Keep this email; you will need the key to activate the product on your devices.</p>
</body></html>
`

var (
	licenseTextTmpl = texttemplate.Must(texttemplate.New("license_text").Parse(licenseDeliveryText))
	licenseHTMLTmpl = htmltemplate.Must(htmltemplate.New("license_html").Parse(licenseDeliveryHTML))
)

// EnqueueLicenseDelivery renders and enqueues the license key email. A
// non-empty purchaseID is carried in the item's metadata so the delivery
// confirmation can be written back to the purchase row; migration-issued
// licenses have no purchase and pass "".
func (s *Service) EnqueueLicenseDelivery(ctx context.Context, recipient, licenseKey, purchaseID string) error {
	data := struct {
		Product string
		Key     string
	}{Product: s.cfg.License.ProductName, Key: licenseKey}

	var text, html bytes.Buffer
	if err := licenseTextTmpl.Execute(&text, data); err != nil {
		return fmt.Errorf("failed to render text body: %w", err)
	}
	if err := licenseHTMLTmpl.Execute(&html, data); err != nil {
		return fmt.Errorf("failed to render html body: %w", err)
	}

	metadata := map[string]any{"kind": "license_delivery", "license_key": licenseKey}
	if purchaseID != "" {
		metadata[metadataKeyPurchaseID] = purchaseID
	}

	_, err := s.Enqueue(ctx, &EnqueueRequest{
		Recipient: recipient,
		Subject:   fmt.Sprintf(licenseDeliverySubject, s.cfg.License.ProductName),
		BodyText:  text.String(),
		BodyHTML:  html.String(),
		Metadata:  metadata,
	})
	return err
}
