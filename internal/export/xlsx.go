package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "clinics"

// WriteXLSX writes rows to a single-sheet workbook. Numeric columns are
// stored as numbers.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetInt64(r.ID)
		for _, v := range []string{r.Name, r.URL, r.ProfileID, r.NIP, r.LegalName, r.Description} {
			row.AddCell().SetString(v)
		}
		addOptionalInt(row, r.ReviewCount)
		addOptionalInt(row, r.DoctorCount)
		for _, v := range []string{r.Specializations, r.Addresses, r.Coordinates} {
			row.AddCell().SetString(v)
		}
		row.AddCell().SetInt(r.AddressCount)
		for _, v := range []string{r.WebsiteURL, r.LinkedInURL, r.DiscoveredAt, r.EnrichedAt} {
			row.AddCell().SetString(v)
		}
	}

	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

func addOptionalInt(row *xlsx.Row, v *int) {
	cell := row.AddCell()
	if v != nil {
		cell.SetInt(*v)
	}
}
