// Package config loads the ebidash configuration.
//
// Values are layered, lowest precedence first:
//
//	1. Default()
//	2. the YAML file named by EBI_CONFIG_FILE, or config.yaml / configs/config.yaml
//	3. environment variables prefixed with EBI_, after an optional .env file
//
// Environment variables follow the section layout of the YAML file:
//
//	EBI_SERVER_PORT=8080
//	EBI_LOGGING_LEVEL=debug
//	EBI_CACHE_TTL=10m
//	EBI_RECONCILE_THRESHOLD=0.8
//	EBI_SHEETS_CREDENTIALS_FILE=/secrets/sheets.json
//
// Sources are YAML only:
//
//	sources:
//	  funding:
//	    kind: sheets
//	    spreadsheet_id: 1AbC...
//	    range: Funding
//	  portfolio:
//	    kind: xlsx
//	    path: data/portfolio.xlsx
//	    sheet: Companies
package config
