// Package httpclient provides Go clients for the upload REST API.
//
// Upload a file in chunks, then merge it, with an Uploader:
//
//	uploader, err := httpclient.NewUploader("http://localhost:8080/api/upload",
//	   httpclient.WithToken(token),
//	   httpclient.WithProgress(func(done, total int) { ... }),
//	)
//	if err != nil {
//	   panic(err)
//	}
//	artifact, err := uploader.UploadPath(ctx, "resume.pdf")
//
// Then download published files with a Client:
//
//	client, err := httpclient.New("http://localhost:8080/api/upload")
//	artifact, err := client.ReadArtifact(ctx, artifact.URL, os.Stdout)
package httpclient
