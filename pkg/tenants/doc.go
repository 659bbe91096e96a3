// Package tenants manages the tenants that own service accounts.
//
// A tenant moves between active and suspended, and may be deleted from
// either state. Deletion is a soft delete and is terminal. Only active
// tenants may create or modify service accounts.
//
//	svc := tenants.NewService(tenants.NewPostgresStore(db), logger)
//	t, err := svc.Create(ctx, tenants.CreateTenantRequest{Name: "Acme Corp"})
//	// t.Slug == "acme-corp"
//
//	if err := svc.RequireActive(ctx, t.ID); err != nil {
//		// ErrNotFound or ErrInactive
//	}
package tenants
