package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procurement/internal/model"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gopkg.in/gomail.v2"
)

func sampleRFQ() RFQ {
	return RFQ{
		Number:   "RFQ-2026-0001",
		Deadline: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
		Contact:  "buyer <buyer@example.com>",
		Request: &model.PurchaseRequest{
			RequestNumber: "SC-2026-0007",
			Title:         "Office chairs",
			Currency:      "CLP",
			Items: []model.RequestItem{
				{Description: "Ergonomic chair", Quantity: decimal.NewFromInt(10), Unit: "unit"},
				{Description: "Armrest kit", Quantity: decimal.NewFromInt(4), Unit: "set", Specifications: "black"},
			},
		},
	}
}

func TestSpreadsheetRenderer(t *testing.T) {
	doc, err := NewSpreadsheetRenderer("Acme Procurement").Render(context.Background(), sampleRFQ())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if doc.FileName != "RFQ-2026-0001.xlsx" || doc.ContentType != xlsxContentType {
		t.Fatalf("unexpected document metadata %s %s", doc.FileName, doc.ContentType)
	}

	f, err := excelize.OpenReader(bytes.NewReader(doc.Content))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	cells := map[string]string{
		"A1":  "Acme Procurement - Request for quotation",
		"B3":  "RFQ-2026-0001",
		"B4":  "SC-2026-0007",
		"B8":  "2026-11-02",
		"B11": "Description",
		"B12": "Ergonomic chair",
		"C12": "10",
		"B13": "Armrest kit",
		"E13": "black",
	}
	for cell, want := range cells {
		got, err := f.GetCellValue(rfqSheet, cell)
		if err != nil {
			t.Fatalf("read %s: %v", cell, err)
		}
		if got != want {
			t.Fatalf("cell %s: expected %q, got %q", cell, want, got)
		}
	}
	formula, err := f.GetCellFormula(rfqSheet, "G12")
	if err != nil || formula != "C12*F12" {
		t.Fatalf("expected total formula on G12, got %q (%v)", formula, err)
	}
}

func TestNewRFQMessage(t *testing.T) {
	msg := NewRFQMessage(sampleRFQ(), model.Supplier{BusinessName: "Beta SpA", TradeName: "Beta"})
	if !strings.Contains(msg.Subject, "RFQ-2026-0001") || !strings.Contains(msg.Subject, "Office chairs") {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.HasPrefix(msg.Body, "Dear Beta,") || !strings.Contains(msg.Body, "2026-11-02") {
		t.Fatalf("unexpected body %q", msg.Body)
	}
}

type fakeDialer struct {
	sent  []*gomail.Message
	err   error
	delay time.Duration
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	time.Sleep(d.delay)
	d.sent = append(d.sent, m...)
	return d.err
}

func testDocument() *Document {
	return &Document{FileName: "RFQ-2026-0001.xlsx", ContentType: xlsxContentType, Content: []byte("xlsx")}
}

func TestSMTPSender(t *testing.T) {
	dialer := &fakeDialer{}
	sender := &SMTPSender{dialer: dialer, from: "purchasing@example.com"}
	supplier := model.Supplier{BusinessName: "Beta SpA", Email: "quotes@beta.test"}

	if err := sender.Send(context.Background(), supplier, testDocument(), Message{Subject: "RFQ", Body: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(dialer.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(dialer.sent))
	}
	m := dialer.sent[0]
	if to := m.GetHeader("To"); len(to) != 1 || !strings.Contains(to[0], "quotes@beta.test") {
		t.Fatalf("unexpected recipient %v", to)
	}
	var raw bytes.Buffer
	if _, err := m.WriteTo(&raw); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if !strings.Contains(raw.String(), `filename="RFQ-2026-0001.xlsx"`) {
		t.Fatalf("attachment missing from message")
	}

	if err := sender.Send(context.Background(), model.Supplier{BusinessName: "NoMail"}, testDocument(), Message{}); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}

	dialer.err = errors.New("535 authentication failed")
	if err := sender.Send(context.Background(), supplier, testDocument(), Message{}); err == nil || !strings.Contains(err.Error(), "535") {
		t.Fatalf("dialer errors must surface, got %v", err)
	}
}

func TestSMTPSenderHonoursContext(t *testing.T) {
	sender := &SMTPSender{dialer: &fakeDialer{delay: time.Second}, from: "purchasing@example.com"}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sender.Send(ctx, model.Supplier{Email: "slow@example.com"}, testDocument(), Message{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWhatsAppSender(t *testing.T) {
	var got whatsAppRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.To == "+56900000000" {
			_ = json.NewEncoder(w).Encode(whatsAppResponse{Success: false, Error: "not on whatsapp"})
			return
		}
		_ = json.NewEncoder(w).Encode(whatsAppResponse{Success: true, ID: "wamid.1"})
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL+"/", "secret", time.Second)
	supplier := model.Supplier{BusinessName: "Acme", Mobile: "+56 9 1111 1111"}
	if err := sender.Send(context.Background(), supplier, testDocument(), Message{Subject: "RFQ", Body: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "+56911111111" || got.Document.FileName != "RFQ-2026-0001.xlsx" {
		t.Fatalf("unexpected payload %+v", got)
	}
	data, err := base64.StdEncoding.DecodeString(got.Document.Data)
	if err != nil || string(data) != "xlsx" {
		t.Fatalf("document must travel base64 encoded")
	}

	rejected := model.Supplier{BusinessName: "Ghost", Phone: "+56 9 0000 0000"}
	if err := sender.Send(context.Background(), rejected, testDocument(), Message{}); err == nil || !strings.Contains(err.Error(), "not on whatsapp") {
		t.Fatalf("gateway rejection must surface, got %v", err)
	}
	if err := sender.Send(context.Background(), model.Supplier{BusinessName: "Silent"}, testDocument(), Message{}); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}

	unauthorized := NewWhatsAppSender(srv.URL, "wrong", time.Second)
	if err := unauthorized.Send(context.Background(), supplier, testDocument(), Message{}); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("non-2xx responses must fail, got %v", err)
	}
}

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"+56 9 1234-5678": "+56912345678",
		"(02) 2345 6789":  "0223456789",
		"9+1":             "91",
		"+":               "",
		"":                "",
	}
	for in, want := range cases {
		if got := normalizeNumber(in); got != want {
			t.Fatalf("normalizeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
