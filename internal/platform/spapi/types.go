package spapi

// pricingResponse is the wire shape of a competitive-pricing batch response.
type pricingResponse struct {
	Data []pricingEntry `json:"data"`
}

type pricingEntry struct {
	ASIN   string     `json:"asin"`
	Offers []apiOffer `json:"offers"`
}

type apiOffer struct {
	SellerID        string   `json:"sellerId"`
	ListingPrice    apiPrice `json:"listingPrice"`
	IsBuyBoxWinner  bool     `json:"isBuyBoxWinner"`
	FulfillmentType string   `json:"fulfillmentType"`
}

type apiPrice struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
}

// SubmissionReceipt is the acknowledgement returned for a single price
// update.
type SubmissionReceipt struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
}

// FeedReceipt is the acknowledgement returned for a bulk feed document.
type FeedReceipt struct {
	FeedDocumentID string `json:"feedDocumentId"`
	Status         string `json:"status"`
}

type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
