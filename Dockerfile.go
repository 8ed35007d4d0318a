# Dockerfile for the ingest and aggregation daemons
FROM golang:1.22-alpine AS builder

WORKDIR /app

RUN apk add --no-cache git

COPY go.mod go.sum* ./
RUN go mod download

COPY . ./

RUN CGO_ENABLED=0 GOOS=linux go build -a -installsuffix cgo -o ingestd ./cmd/ingestd
RUN CGO_ENABLED=0 GOOS=linux go build -a -installsuffix cgo -o aggregatord ./cmd/aggregatord

FROM alpine:latest

RUN apk --no-cache add ca-certificates tzdata

WORKDIR /root/

COPY --from=builder /app/ingestd .
COPY --from=builder /app/aggregatord .
COPY --from=builder /app/configs ./configs

EXPOSE 9090

HEALTHCHECK --interval=30s --timeout=10s --start-period=5s --retries=3 \
  CMD wget --no-verbose --tries=1 --spider http://localhost:9090/health || exit 1

CMD ["./ingestd"]
