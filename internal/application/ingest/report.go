package ingest

import (
	"fmt"
	"strings"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

// buildDescription assembles the markdown payload attached to the report:
// keyword header, classification, cartography link, administrative chain and
// the matched reference object's attributes.
func (s *Service) buildDescription(iss *domain.Issue) {
	var b strings.Builder

	b.WriteString(s.Keyword)
	b.WriteString("\n Alerte d'incohérence sur un objet de type ")
	b.WriteString(iss.Classification.ItemNameFR)
	b.WriteString("\n Incohérence [ ** Présence ou Description attributaire ** ] OSM/IGN.")
	fmt.Fprintf(&b,
		" La cartographie IGN est (Plan IGN J+1) https://www.geoportail.gouv.fr/carte?c=%v,%v&z=17&l0=GEOGRAPHICALGRIDSYSTEMS.MAPS.BDUNI.J1::GEOPORTAIL:OGC:WMTS(1)&l1=ORTHOIMAGERY.ORTHOPHOTOS::GEOPORTAIL:OGC:WMTS(0.32)&permalink=yes\n",
		iss.Lon, iss.Lat)

	g := iss.Geography
	for _, part := range []string{
		g.TerritoryName,
		g.RegionName,
		g.DepartmentName,
		g.CollectivityName,
		g.CommuneName,
		g.ArrondissementName,
	} {
		if part != "" {
			b.WriteString(part)
			b.WriteString(" / ")
		}
	}

	if g.ObjectID != "" {
		attrs := s.Items[iss.Classification.ItemID].Attrs
		modified := "inconnue"
		if g.ObjectModifiedAt != nil {
			modified = g.ObjectModifiedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "\nObjet concerné: %s (dernière modification %s)\n", g.ObjectID, modified)
		pairs := [][2]string{
			{attrs["attribut_1"], g.Attr1},
			{attrs["attribut_2"], g.Attr2},
			{attrs["attribut_3"], g.Attr3},
			{attrs["attribut_4"], g.Attr4},
			{attrs["attribut_5"], g.Attr5},
		}
		for _, p := range pairs {
			if p[0] != "" && p[1] != "" {
				fmt.Fprintf(&b, "%s: %s\n", p[0], p[1])
			}
		}
	}

	iss.Description = b.String()
}
