// Package device recognizes the devices an account signs in from and keeps the
// number of trusted devices per account within a configured limit.
//
// # Overview
//
// The package provides:
//   - DeviceRecord storage (in-memory, JSON file, PostgreSQL)
//   - A per-account unit of work (Repository.RunInUserTx)
//   - Registry, which matches fingerprints, registers new devices, blocks
//     accounts over the limit, and throttles removals
//   - Derived labels and browser/OS names from the user agent
//
// # Basic Usage
//
//	import "github.com/tendant/simple-device-trust/pkg/device"
//
//	repo, err := device.NewRepository("postgres", device.RepositoryConfig{DB: pool})
//	registry, err := device.NewRegistry(repo, matcher, enforcer, throttler, tokens,
//		device.WithAlerter(alerter),
//		device.WithStorageTimeout(5*time.Second),
//	)
//
//	// During sign-in, after the identity service has authenticated userID
//	result, err := registry.RegisterOrTouch(ctx, userID, fp, "")
//	switch apperrors.GetCode(err) {
//	case apperrors.ErrCodeAccountBlocked, apperrors.ErrCodeDeviceLimitExceeded:
//		// redirect to the device management page
//	}
//
// # Concurrency
//
// Registration reads the active devices, decides whether to insert, inserts and
// re-evaluates the trust state. The whole sequence runs inside RunInUserTx, so
// two concurrent sign-ins of one account cannot both slip under the limit. The
// PostgreSQL repository uses a transaction-scoped advisory lock keyed by the
// user ID; the in-memory and file repositories use one lock per user.
//
// # Related Packages
//
//   - pkg/similarity - fingerprint scoring
//   - pkg/trust - ACTIVE/BLOCKED state machine
//   - pkg/ratelimit - removal cooldown
//   - pkg/mgmttoken - signed device-management tokens
package device
