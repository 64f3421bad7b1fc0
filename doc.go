// Package blockrisk scores city blocks for night-time safety risk with a model
// trained by riskctl.
//
// The client loads the artifact once and scores in process, without the HTTP server:
//
//	client, err := blockrisk.New(ctx, blockrisk.WithArtifactPath("model.json.gz"))
//	if err != nil {
//	    return err
//	}
//	res, _ := client.Score(ctx, blockrisk.Features{
//	    Hour: 2, LightingScore: 1, PoliceStnDist: 8, PastIncidents: 40, CrowdDensity: 1,
//	})
//	fmt.Println(res.RiskScore)
//
// ScorePartial accepts a decoded JSON object instead; fields it lacks take the same
// defaults the server applies.
package blockrisk
