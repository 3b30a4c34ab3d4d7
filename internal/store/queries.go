package store

// Reporting queries shared by both backends. They take no parameters.
const (
	statsQuery = `
		SELECT
			(SELECT COUNT(*) FROM facets),
			(SELECT COUNT(*) FROM facet_progress WHERE status = 'done'),
			(SELECT COUNT(*) FROM facet_progress WHERE status = 'in_progress'),
			(SELECT COUNT(*) FROM clinics),
			(SELECT COUNT(*) FROM clinics WHERE enriched_at IS NOT NULL),
			(SELECT COUNT(*) FROM clinic_locations),
			(SELECT COUNT(*) FROM doctors),
			(SELECT COUNT(*) FROM clinic_facets),
			(SELECT COALESCE(SUM(last_page_scraped), 0) FROM facet_progress)`

	facetSummaryQuery = `
		SELECT f.id, f.name,
			COALESCE(p.status, 'pending'),
			COALESCE(p.last_page_scraped, 0),
			p.total_pages,
			(SELECT COUNT(*) FROM clinic_facets cf WHERE cf.facet_id = f.id),
			(SELECT COUNT(*) FROM clinic_facets cf
				WHERE cf.facet_id = f.id
				AND EXISTS (SELECT 1 FROM clinic_facets o WHERE o.clinic_id = cf.clinic_id AND o.facet_id <> f.id))
		FROM facets f
		LEFT JOIN facet_progress p ON p.facet_id = f.id
		ORDER BY f.id`

	enrichedLocationsQuery = `
		SELECT l.clinic_id, l.address, l.latitude, l.longitude,
			l.facebook_url, l.instagram_url, l.youtube_url, l.linkedin_url, l.website_url
		FROM clinic_locations l
		JOIN clinics c ON c.id = l.clinic_id
		WHERE c.enriched_at IS NOT NULL
		ORDER BY l.clinic_id, l.id`

	enrichedFacetNamesQuery = `
		SELECT cf.clinic_id, f.name
		FROM clinic_facets cf
		JOIN facets f ON f.id = cf.facet_id
		JOIN clinics c ON c.id = cf.clinic_id
		WHERE c.enriched_at IS NOT NULL
		ORDER BY cf.clinic_id, f.name`
)
