package persona

import (
	"github.com/sundew-sh/sundew/internal/models"
)

// Pack is a pre-built template set for one industry. Pack endpoints use the
// generic /api/v1 prefix; loading rewrites them under the persona's own
// prefix.
type Pack struct {
	Industry  string
	Templates []models.ResponseTemplate
}

// packItemBodies holds the per-industry JSON fragments used to assemble
// list and detail templates. One variant per industry, keyed by tag.
var packItemBodies = map[string]struct {
	listItems  string
	detailBody string
}{
	models.IndustryFintech: {
		listItems: `{"id":"txn_{{random_id}}","amount":2847.50,"currency":"USD","status":"completed","created_at":"{{timestamp}}"},
{"id":"txn_{{random_id}}","amount":149.99,"currency":"USD","status":"pending","created_at":"{{timestamp}}"}`,
		detailBody: `{"id":"txn_{{random_id}}","amount":2847.50,"currency":"USD","status":"completed","reference":"REF-{{random_int}}","created_at":"{{timestamp}}"}`,
	},
	models.IndustrySaaS: {
		listItems: `{"id":"usr_{{random_id}}","email":"admin@{{company_domain}}","role":"admin","status":"active"},
{"id":"usr_{{random_id}}","email":"dev@{{company_domain}}","role":"member","status":"active"}`,
		detailBody: `{"id":"usr_{{random_id}}","email":"admin@{{company_domain}}","role":"admin","status":"active","last_login":"{{timestamp}}"}`,
	},
	models.IndustryHealthcare: {
		listItems: `{"id":"pat_{{random_id}}","name":"Riley Thompson","mrn":"MRN-{{random_int}}","status":"active"},
{"id":"pat_{{random_id}}","name":"Morgan Lee","mrn":"MRN-{{random_int}}","status":"active"}`,
		detailBody: `{"id":"pat_{{random_id}}","name":"Riley Thompson","mrn":"MRN-{{random_int}}","provider":"Dr. Sarah Kim","last_visit":"{{timestamp}}"}`,
	},
	models.IndustryEcommerce: {
		listItems: `{"id":"prod_{{random_id}}","name":"Wireless Headphones","price":199.99,"in_stock":true,"sku":"SKU-{{random_int}}"},
{"id":"prod_{{random_id}}","name":"USB-C Hub","price":49.99,"in_stock":true,"sku":"SKU-{{random_int}}"}`,
		detailBody: `{"id":"prod_{{random_id}}","name":"Wireless Noise-Canceling Headphones","price":199.99,"currency":"USD","sku":"SKU-{{random_int}}","in_stock":true,"rating":4.7}`,
	},
	models.IndustryDevtools: {
		listItems: `{"id":"repo_{{random_id}}","name":"api-gateway","language":"TypeScript","visibility":"private"},
{"id":"repo_{{random_id}}","name":"ml-pipeline","language":"Python","visibility":"private"}`,
		detailBody: `{"id":"repo_{{random_id}}","name":"api-gateway","language":"TypeScript","visibility":"private","default_branch":"main","last_push":"{{timestamp}}"}`,
	},
	models.IndustryLogistics: {
		listItems: `{"id":"shp_{{random_id}}","tracking":"TRK-{{random_int}}","status":"in_transit","carrier":"FedEx"},
{"id":"shp_{{random_id}}","tracking":"TRK-{{random_int}}","status":"delivered","carrier":"UPS"}`,
		detailBody: `{"id":"shp_{{random_id}}","tracking_number":"TRK-{{random_int}}","status":"in_transit","carrier":"FedEx","origin":"Memphis, TN","destination":"San Francisco, CA","estimated_delivery":"{{timestamp}}"}`,
	},
}

// BuiltinPack returns the pre-built template set for an industry, or nil if
// no pack exists for it.
func BuiltinPack(industry, theme string) *Pack {
	bodies, ok := packItemBodies[industry]
	if !ok {
		return nil
	}

	templates := []models.ResponseTemplate{
		{
			Endpoint:    "/api/v1/" + theme,
			Method:      "GET",
			StatusCode:  200,
			ContentType: "application/json",
			BodyTemplate: `{"data":[` + bodies.listItems + `],` +
				`"meta":{"page":1,"per_page":25,"total":{{random_int}},"total_pages":2},"request_id":"{{request_id}}"}`,
			Description: "List " + theme,
		},
		{
			Endpoint:     "/api/v1/" + theme + "/{{id}}",
			Method:       "GET",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: bodies.detailBody,
			Description:  "Get single " + theme + " item",
		},
		{
			Endpoint:     "/api/v1/" + theme,
			Method:       "POST",
			StatusCode:   201,
			ContentType:  "application/json",
			BodyTemplate: `{"id":"{{random_id}}","status":"created","created_at":"{{timestamp}}"}`,
			Description:  "Create " + theme + " item",
		},
		{
			Endpoint:     "/api/v1/" + theme + "/{{id}}",
			Method:       "PUT",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: `{"id":"{{random_id}}","status":"updated","updated_at":"{{timestamp}}"}`,
			Description:  "Update " + theme + " item",
		},
		{
			Endpoint:     "/api/v1/" + theme + "/{{id}}",
			Method:       "DELETE",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: `{"id":"{{random_id}}","status":"deleted","deleted_at":"{{timestamp}}"}`,
			Description:  "Delete " + theme + " item",
		},
		{
			Endpoint:     "/api/v1/health",
			Method:       "GET",
			StatusCode:   200,
			ContentType:  "application/json",
			BodyTemplate: `{"status":"healthy","timestamp":"{{timestamp}}","version":"1.0.0"}`,
			Description:  "Health check endpoint",
		},
	}

	return &Pack{Industry: industry, Templates: templates}
}
