package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/example/bakery-orders/internal/lifecycle"
	"github.com/example/bakery-orders/internal/models"
)

var funcs = template.FuncMap{
	"label": lifecycle.StatusLabel,
	"lineTotal": func(l models.OrderLine) string {
		return l.Subtotal().String()
	},
}

var subjects = map[Kind]string{
	OrderConfirmed: "Order {{.Order.OrderID}} confirmed - {{.Shop}}",
	OrderDelivered: "Order {{.Order.OrderID}} delivered - {{.Shop}}",
	OrderCompleted: "Order {{.Order.OrderID}} completed - {{.Shop}}",
	OrderCancelled: "Order {{.Order.OrderID}} cancelled - {{.Shop}}",
}

const bodyText = `Hello {{if .Order.CustomerName}}{{.Order.CustomerName}}{{else}}there{{end}},

Your order {{.Order.OrderID}} is now {{label .Order.Status}}.

Order type: {{.Order.OrderType}}
{{range .Order.Lines}}- {{.Name}} x {{.Quantity}} @ {{.UnitPrice}} = {{lineTotal .}}
{{end}}
Subtotal: {{.Currency}} {{.Order.Subtotal}}
Delivery fee: {{.Currency}} {{.Order.DeliveryFee}}
Grand total: {{.Currency}} {{.Order.GrandTotal}}
{{if .Order.DeliveryAddress}}
Delivery address: {{.Order.DeliveryAddress}}
{{end}}
{{.Shop}}
`

const smsText = `{{.Shop}}: order {{.Order.OrderID}} is {{label .Order.Status}}. Total {{.Currency}} {{.Order.GrandTotal}}.`

var (
	subjectTmpls = map[Kind]*template.Template{}
	bodyTmpl     = template.Must(template.New("body").Funcs(funcs).Parse(bodyText))
	smsTmpl      = template.Must(template.New("sms").Funcs(funcs).Parse(smsText))
)

func init() {
	for k, s := range subjects {
		subjectTmpls[k] = template.Must(template.New(string(k)).Funcs(funcs).Parse(s))
	}
}

// Renderer fills the order templates with shop branding.
type Renderer struct {
	Shop     string
	Currency string
}

type view struct {
	Shop     string
	Currency string
	Order    *models.Order
}

type Message struct {
	Subject string
	Body    string
}

func (r Renderer) Email(n Notification) (Message, error) {
	st, ok := subjectTmpls[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for %s", n.Kind)
	}
	v := view{Shop: r.Shop, Currency: r.Currency, Order: n.Order}
	var subj, body bytes.Buffer
	if err := st.Execute(&subj, v); err != nil {
		return Message{}, err
	}
	if err := bodyTmpl.Execute(&body, v); err != nil {
		return Message{}, err
	}
	return Message{Subject: subj.String(), Body: body.String()}, nil
}

func (r Renderer) SMS(n Notification) (string, error) {
	var b bytes.Buffer
	if err := smsTmpl.Execute(&b, view{Shop: r.Shop, Currency: r.Currency, Order: n.Order}); err != nil {
		return "", err
	}
	return b.String(), nil
}
