// Package http implements the HTTP handlers of the reporting service.
// Handlers stay thin: they parse and validate the request, call a service
// and render the result.
//
// # Routes
//
//	GET /api/reports                 catalog listing
//	GET /api/reports/{name}          run a report (?start=&end=&q=&format=json|csv|xlsx)
//	GET /api/reports/{name}/spec     catalog entry of one report
//	GET /api/reports/{name}/series/{aggregate}
//	                                 per-year chart points of one aggregate
//	GET /api/sources                 configured sources and cache statistics
//	POST /api/sources/refresh        drop cached ledgers (?source=id, default all)
//	GET /api/health[/ready|/live]    health probes
//	GET /api/version                 build information
//	GET /metrics                     Prometheus scrape endpoint
//
// # Error Handling
//
// All errors are written as RFC 7807 problem details by the shared
// errors.ErrorHandler:
//
//	{
//	    "type": "/errors/validation",
//	    "title": "Validation Failed",
//	    "status": 400,
//	    "detail": "end must not be before start",
//	    "instance": "/api/reports/top-pis"
//	}
//
// CSV and XLSX exports are encoded in memory before the first byte is
// written, so a failed export still produces a problem response.
package http
