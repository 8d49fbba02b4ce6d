package entity

// CollectionShape is the schema descriptor the platform attaches to each
// entity: the document collection it persists to. The data-access core treats
// it as opaque; store adapters read it when binding a handle to a collection.
type CollectionShape struct {
	Collection string
}

// RegisterCatalog registers every entity the dealership platform stores.
// Shared entities live in the main database; everything a dealer records about
// their own stock, inspections, and paperwork is tenant-isolated.
func RegisterCatalog(r *Registry) error {
	shared := map[string]string{
		"MasterAdmin":  "master_admins",
		"DealerGroup":  "dealer_groups",
		"CatalogMake":  "catalog_makes",
		"CatalogModel": "catalog_models",
	}
	tenant := map[string]string{
		"Vehicle":          "vehicles",
		"Inspection":       "inspections",
		"WorkshopQuote":    "workshop_quotes",
		"Appraisal":        "appraisals",
		"SignatureRequest": "signature_requests",
		"DealerUser":       "dealer_users",
		"ReportSnapshot":   "report_snapshots",
	}

	for name, coll := range shared {
		if err := r.Register(name, ScopeShared, CollectionShape{Collection: coll}); err != nil {
			return err
		}
	}
	for name, coll := range tenant {
		if err := r.Register(name, ScopeTenant, CollectionShape{Collection: coll}); err != nil {
			return err
		}
	}
	return nil
}
