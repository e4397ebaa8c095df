// Package admin serves a JSON admin site over the subscription models.
//
// Each model is registered on a Site with a ModelAdmin describing its
// editable fields, change list columns, search fields, filters and default
// ordering. Child models such as plan costs and plan list entries are edited
// inline on their parent's page.
//
// Routes, mounted under /admin:
//
//	GET    /                 registered models
//	GET    /{model}/         change list (q, o, page, page_size and filters)
//	POST   /{model}/         create, with inline rows under the inline's name
//	GET    /{model}/{id}     change form with inline rows and blank extra forms
//	PUT    /{model}/{id}     partial update; inline rows with "DELETE": true are removed
//	DELETE /{model}/{id}
//	GET    /{model}/{id}/history  recorded changes, see WithAuditLog
//
// Every create, update and delete is logged and, when an audit.Logger is
// attached, recorded with the acting staff member.
package admin
