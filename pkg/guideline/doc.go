// Package guideline embeds the guideline resource store in a Go program.
//
// A Client downloads the release archives of a guideline repository,
// indexes the FHIR resources they contain and answers lookups by release
// version, resource type and canonical URL without running the HTTP server.
//
//	client, err := guideline.New(ctx,
//	    guideline.WithRepository("https://github.com/acme/guidelines"),
//	    guideline.WithStorage("/var/lib/guidelines"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	raw, err := client.Resource(ctx, guideline.Latest, "PlanDefinition",
//	    "https://example.org/PlanDefinition/sepsis")
//	if errors.Is(err, guideline.ErrNotFound) {
//	    // unknown version, resource type or url
//	}
package guideline
