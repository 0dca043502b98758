package testutil

import "ebidash/pkg/contracts/domain"

// FundingTable returns a small funding ledger: surname PIs, Research and
// Sub-award rows, raw currency text, a PI without a productivity match
// ("Okafor"), an all-zero row and the two summary rows.
func FundingTable() *domain.Table {
	return &domain.Table{
		Source: domain.SourceFunding,
		Columns: []string{
			"Gift", "Type", "PI",
			"2015 Actual", "2015 Budget", "2016 Actual", "2016 Budget",
			"2019 Actual", "2019 Budget", "2020 Actual", "2020 Budget",
		},
		Rows: []domain.Row{
			{"Gift": "BP", "Type": "Research", "PI": "Smith",
				"2015 Actual": 100.0, "2015 Budget": 120.0, "2016 Actual": 50.0, "2016 Budget": 50.0,
				"2019 Actual": "100", "2019 Budget": "150", "2020 Actual": "200", "2020 Budget": "200"},
			{"Gift": "Shell", "Type": "Sub-award", "PI": "Smith",
				"2015 Actual": nil, "2015 Budget": nil, "2016 Actual": 0.0, "2016 Budget": 0.0,
				"2019 Actual": 20.0, "2019 Budget": 20.0, "2020 Actual": 30.0, "2020 Budget": 30.0},
			{"Gift": "BP", "Type": "Research", "PI": "Garcia",
				"2015 Actual": "1,000", "2015 Budget": "1,000", "2016 Actual": nil, "2016 Budget": nil,
				"2019 Actual": 300.0, "2019 Budget": 300.0, "2020 Actual": 0.0, "2020 Budget": 0.0},
			{"Gift": "Shell", "Type": "Research", "PI": "Nguyen",
				"2015 Actual": nil, "2015 Budget": nil, "2016 Actual": 10.0, "2016 Budget": 10.0,
				"2019 Actual": 80.0, "2019 Budget": 100.0, "2020 Actual": 120.0, "2020 Budget": 100.0},
			{"Gift": "Shell", "Type": "Research", "PI": "Okafor",
				"2019 Actual": 40.0, "2019 Budget": 40.0},
			{"Gift": "Shell", "Type": "Research", "PI": "Brown",
				"2019 Actual": 0.0, "2019 Budget": 0.0, "2020 Actual": 0.0, "2020 Budget": 0.0},
			{"Type": "Research Total",
				"2019 Budget": "610", "2020 Budget": "340"},
			{"Type": "Sub Award Total",
				"2019 Actual": "20", "2020 Actual": "30"},
			{"Gift": "notes: figures in USD"},
		},
	}
}

// ProductivityTable returns a project ledger with a duplicated project, a
// spelling variant of one PI ("Jon Smith"), a second PI sharing the surname
// Smith, a PI with no funding and a row without a PI.
func ProductivityTable() *domain.Table {
	return &domain.Table{
		Source: domain.SourceProductivity,
		Columns: []string{
			"Principle Investigator", "Project Name", "Program", "Discipline",
			"Institution", "Sponsor", "Personnel", "Productivity and Deliverables",
		},
		Rows: []domain.Row{
			{"Principle Investigator": "John Smith", "Project Name": "Algae Oil", "Program": "Feedstocks",
				"Discipline": "Biology", "Institution": "UC Berkeley", "Sponsor": "BP",
				"Personnel": "Ana Ruiz", "Productivity and Deliverables": "2 publications, 1 presentation"},
			{"Principle Investigator": "Jon Smith", "Project Name": "Algae Oil", "Program": "Feedstocks",
				"Discipline": "Biology", "Institution": "UC Berkeley", "Sponsor": "BP",
				"Personnel": "", "Productivity and Deliverables": "2 publications"},
			{"Principle Investigator": "Maria Garcia", "Project Name": "Soil Carbon", "Program": "Soils",
				"Discipline": "Ecology", "Institution": "UC San Diego", "Sponsor": "BP",
				"Personnel": "Lee Park", "Productivity and Deliverables": "3 publications; dataset"},
			{"Principle Investigator": "Tran Nguyen", "Project Name": "Enzymes", "Program": "Conversion",
				"Discipline": "Chemistry", "Institution": "UIUC", "Sponsor": "Shell",
				"Personnel": "", "Productivity and Deliverables": "final report"},
			{"Principle Investigator": "Alex Smith", "Project Name": "Lignin", "Program": "Conversion",
				"Discipline": "Chemistry", "Institution": "UC Berkeley", "Sponsor": "Shell",
				"Personnel": "", "Productivity and Deliverables": ""},
			{"Principle Investigator": "Priya Patel", "Project Name": "Membranes", "Program": "Separations",
				"Discipline": "Engineering", "Institution": "LBNL", "Sponsor": "Shell",
				"Personnel": "", "Productivity and Deliverables": "software tool"},
			{"Principle Investigator": "", "Project Name": "Unassigned", "Program": "Soils",
				"Discipline": "Ecology", "Institution": "UC Berkeley", "Sponsor": "BP"},
		},
	}
}

// BerkeleyTable returns the category ledger: first column is the category,
// year columns hold currency text, "EBI Squared" appears twice (the second
// row is the recharge line) and NSF is present.
func BerkeleyTable() *domain.Table {
	cols := []string{"Legend"}
	for y := 2018; y <= 2029; y++ {
		cols = append(cols, yearName(y))
	}
	row := func(label string, v string) domain.Row {
		r := domain.Row{"Legend": label}
		for _, c := range cols[1:] {
			r[c] = v
		}
		return r
	}
	return &domain.Table{
		Source:  domain.SourceBerkeley,
		Columns: cols,
		Rows: []domain.Row{
			row("EBI Squared", "1,000"),
			row("NSF", "500"),
			row("EBI Squared", "200"),
			row("Research (Berkeley only)", "100"),
			row("Industrial Research Funds", "50"),
		},
	}
}

// IPTable returns a patent ledger where one title is listed twice
func IPTable() *domain.Table {
	return &domain.Table{
		Source:  domain.SourceIP,
		Columns: []string{"Patent Title", "Discipline", "Sponsor", "PI", "Institution"},
		Rows: []domain.Row{
			{"Patent Title": "Enzyme cocktail", "Discipline": "Chemistry", "Sponsor": "Shell", "PI": "Nguyen", "Institution": "UIUC"},
			{"Patent Title": "Enzyme cocktail", "Discipline": "Chemistry", "Sponsor": "Shell", "PI": "Nguyen", "Institution": "UIUC"},
			{"Patent Title": "Algae strain", "Discipline": "Biology", "Sponsor": "BP", "PI": "Smith", "Institution": "UC Berkeley"},
			{"Patent Title": "Lignin solvent", "Discipline": "Chemistry", "Sponsor": "Shell", "PI": "Smith", "Institution": "UC Berkeley"},
		},
	}
}

// PortfolioTable returns the startup portfolio with space-separated headers
func PortfolioTable() *domain.Table {
	return &domain.Table{
		Source:  domain.SourcePortfolio,
		Columns: []string{"Company", "Primary Industry Code", "Total Raised", "Employees", "Year Founded"},
		Rows: []domain.Row{
			{"Company": "AlgaCo", "Primary Industry Code": "Energy", "Total Raised": "12.5", "Employees": "40", "Year Founded": "2014"},
			{"Company": "SoilTech", "Primary Industry Code": "Agriculture", "Total Raised": "3", "Employees": "12", "Year Founded": "2017"},
			{"Company": "Enzymix", "Primary Industry Code": "Energy", "Total Raised": "7.5", "Employees": "25", "Year Founded": "2016"},
		},
	}
}

// AdministrativeTable returns the administrative ledger with its summary rows
func AdministrativeTable() *domain.Table {
	return &domain.Table{
		Source:  domain.SourceAdministrative,
		Columns: []string{"Type", "2019 Actual", "2019 Budget", "2020 Actual", "2020 Budget"},
		Rows: []domain.Row{
			{"Type": "Research Total", "2019 Actual": "500", "2019 Budget": "590", "2020 Actual": "300", "2020 Budget": "330"},
			{"Type": "Sub Award Total", "2019 Actual": "20", "2019 Budget": "25", "2020 Actual": "30", "2020 Budget": "35"},
			{"Type": "Operations", "2019 Actual": "7", "2019 Budget": "7", "2020 Actual": "", "2020 Budget": ""},
		},
	}
}

// AllTables returns every fixture keyed by source
func AllTables() map[domain.SourceID]*domain.Table {
	return map[domain.SourceID]*domain.Table{
		domain.SourceFunding:        FundingTable(),
		domain.SourceProductivity:   ProductivityTable(),
		domain.SourceAdministrative: AdministrativeTable(),
		domain.SourceBerkeley:       BerkeleyTable(),
		domain.SourceIP:             IPTable(),
		domain.SourcePortfolio:      PortfolioTable(),
	}
}

func yearName(y int) string {
	return domain.CellString(y)
}
